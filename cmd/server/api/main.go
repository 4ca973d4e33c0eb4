package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/api"
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
	port := flag.Int("port", 9090, "port to listen on")
	authProviderName := flag.String("auth-provider", "firebase", "token verifier: firebase or jwt")
	cacheTTL := flag.Duration("cache-ttl", cache.DefaultTTL, "TTL of cached death lists when Redis is configured")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel).With("service", "api")
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env file: %v", err)
	}

	log.Info("Starting api server version %s", version.Get())
	ctx := context.Background()

	var authProvider authproviders.AuthProvider
	switch *authProviderName {
	case "firebase":
		firebaseProjectID := os.Getenv("MVPHUNTER_FIREBASE_PROJECT_ID")
		if firebaseProjectID == "" {
			panic("MVPHUNTER_FIREBASE_PROJECT_ID environment variable must be set")
		}
		authProvider, err = authproviders.NewFirebaseAuthProvider(ctx, authproviders.NewFirebaseAuthProviderOptions{
			ProjectID:       firebaseProjectID,
			CredentialsFile: os.Getenv("MVPHUNTER_FIREBASE_CREDENTIALS_FILE"),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create Firebase auth provider: %v", err))
		}
	case "jwt":
		authProvider, err = authproviders.NewJWTAuthProvider(authproviders.NewJWTAuthProviderOptions{
			Secret: os.Getenv("MVPHUNTER_JWT_SECRET"),
			Issuer: os.Getenv("MVPHUNTER_JWT_ISSUER"),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create JWT auth provider: %v", err))
		}
	default:
		panic(fmt.Sprintf("Unknown auth provider %s", *authProviderName))
	}

	connStr := os.Getenv("MVPHUNTER_DATABASE_URL")
	if connStr == "" {
		connStr = "sqlite://mvp-hunter.db"
	}
	var repository repositories.Repository
	repository, err = repositories.Open(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to open repository: %v", err))
	}

	var broker changes.Broker = changes.NewInMemoryBroker()
	if redisURL := os.Getenv("MVPHUNTER_REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(fmt.Sprintf("Failed to parse Redis URL: %v", err))
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
		}
		log.Info("Connected to Redis at %s", redisOpts.Addr)

		repository = cache.NewCachedRepository(cache.NewCachedRepositoryOptions{
			Repository: repository,
			Client:     rdb,
			TTL:        *cacheTTL,
		})
		broker = changes.NewRedisBroker(changes.NewRedisBrokerOptions{
			Client: rdb,
		})
	}
	defer repository.Close(ctx)
	defer broker.Close()

	monsters, err := catalog.Default()
	if err != nil {
		panic(fmt.Sprintf("Failed to load monster catalog: %v", err))
	}
	log.Info("Loaded %d monsters", monsters.Len())

	apiServerOpts := api.NewAPIServerOptions{
		Port:         *port,
		AuthProvider: authProvider,
		Repository:   repository,
		Broker:       broker,
		Records: records.NewService(records.NewServiceOptions{
			Repository: repository,
			Broker:     broker,
			Catalog:    monsters,
		}),
	}
	tlsCertFile := os.Getenv("MVPHUNTER_API_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("MVPHUNTER_API_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	server := api.NewAPIServer(apiServerOpts)
	go server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("Shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
}
