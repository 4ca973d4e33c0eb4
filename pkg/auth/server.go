package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/auth/handlers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/gorilla/mux"
)

type AuthServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAuthServerOptions struct {
	Port    int
	Handler handlers.AuthHandler
	TLS     *TLSConfig
}

// NewAuthServer creates a new http.Server for handling authentication requests
func NewAuthServer(opts NewAuthServerOptions) *AuthServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Handler),
	}
	return &AuthServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter routes the form-encoded auth endpoints to the handler.
func NewRouter(handler handlers.AuthHandler) http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/register", handler.HandleRegister()).Methods(http.MethodPost)
	r.HandleFunc("/login", handler.HandleLogin()).Methods(http.MethodPost)
	r.HandleFunc("/refresh", handler.HandleRefresh()).Methods(http.MethodPost)
	r.HandleFunc("/delete", handler.HandleDelete()).Methods(http.MethodPost)
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// Start starts the AuthServer
func (s *AuthServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("Auth server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("Auth server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Auth server closed")
			return
		}
		log.Error("Auth server error: %v", err)
	}
}

// Stop stops the AuthServer
func (s *AuthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
