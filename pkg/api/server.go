package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/api/handlers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/api/middleware"
	authproviders "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/providers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/network"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	Records      *records.Service
	Broker       changes.Broker
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the route table of the API.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider, opts.Repository)

	r := mux.NewRouter()
	r.Use(middleware.NewCORSMiddleware())
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", handlers.HandleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/monsters", handlers.HandleListMonsters(opts.Records.Catalog())).Methods(http.MethodGet)

	deaths := r.PathPrefix("/deaths").Subrouter()
	deaths.Use(authMiddleware)
	deaths.Handle("/stream", network.NewFeedHandler(network.NewFeedHandlerOptions{
		Broker: opts.Broker,
		UserID: middleware.UserIDFromContext,
	})).Methods(http.MethodGet)
	deaths.HandleFunc("", handlers.HandleListDeaths(opts.Records)).Methods(http.MethodGet)
	deaths.HandleFunc("", handlers.HandleClearAllDeaths(opts.Records)).Methods(http.MethodDelete)
	deaths.HandleFunc("/{mvpID}", handlers.HandleSetDeath(opts.Records)).Methods(http.MethodPut)
	deaths.HandleFunc("/{mvpID}", handlers.HandleClearDeath(opts.Records)).Methods(http.MethodDelete)

	return r
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
