package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/auth"
	authhandlers "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/handlers"
	authproviders "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/providers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/cache"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/version"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	mode := flag.String("mode", "firebase", "account backend: firebase or local")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel).With("service", "auth")
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env file: %v", err)
	}

	log.Info("Starting auth server version %s", version.Get())
	ctx := context.Background()

	var handler authhandlers.AuthHandler
	switch *mode {
	case "firebase":
		firebaseApiKey := os.Getenv("MVPHUNTER_FIREBASE_API_KEY")
		if firebaseApiKey == "" {
			panic("MVPHUNTER_FIREBASE_API_KEY environment variable must be set")
		}
		handler = authhandlers.NewFirebaseAuthHandler(authhandlers.NewFirebaseAuthHandlerOptions{
			APIKey: firebaseApiKey,
		})
	case "local":
		provider, err := authproviders.NewJWTAuthProvider(authproviders.NewJWTAuthProviderOptions{
			Secret: os.Getenv("MVPHUNTER_JWT_SECRET"),
			Issuer: os.Getenv("MVPHUNTER_JWT_ISSUER"),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create JWT auth provider: %v", err))
		}

		connStr := os.Getenv("MVPHUNTER_DATABASE_URL")
		if connStr == "" {
			connStr = "sqlite://mvp-hunter.db"
		}
		repository, err := repositories.Open(ctx, connStr)
		if err != nil {
			panic(fmt.Sprintf("Failed to open repository: %v", err))
		}

		// Share the API server's cache and broker so deleting an account
		// reaches its cached list and open feeds.
		var broker changes.Broker = changes.NewInMemoryBroker()
		if redisURL := os.Getenv("MVPHUNTER_REDIS_URL"); redisURL != "" {
			redisOpts, err := redis.ParseURL(redisURL)
			if err != nil {
				panic(fmt.Sprintf("Failed to parse Redis URL: %v", err))
			}
			rdb := redis.NewClient(redisOpts)
			defer rdb.Close()

			repository = cache.NewCachedRepository(cache.NewCachedRepositoryOptions{
				Repository: repository,
				Client:     rdb,
			})
			broker = changes.NewRedisBroker(changes.NewRedisBrokerOptions{
				Client: rdb,
			})
			log.Info("Publishing account deletes through Redis at %s", redisOpts.Addr)
		}
		defer repository.Close(ctx)
		defer broker.Close()

		monsters, err := catalog.Default()
		if err != nil {
			panic(fmt.Sprintf("Failed to load monster catalog: %v", err))
		}

		handler = authhandlers.NewLocalAuthHandler(authhandlers.NewLocalAuthHandlerOptions{
			Repository: repository,
			Records: records.NewService(records.NewServiceOptions{
				Repository: repository,
				Broker:     broker,
				Catalog:    monsters,
			}),
			Provider: provider,
		})
	default:
		panic(fmt.Sprintf("Unknown auth mode %s", *mode))
	}

	authServerOpts := auth.NewAuthServerOptions{
		Port:    *port,
		Handler: handler,
	}
	tlsCertFile := os.Getenv("MVPHUNTER_AUTH_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("MVPHUNTER_AUTH_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		authServerOpts.TLS = &auth.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	server := auth.NewAuthServer(authServerOpts)
	go server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("Shutting down auth server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
}
