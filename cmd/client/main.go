package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/client"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/localstore"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/state"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/version"
	"github.com/joho/godotenv"
)

const usage = `Usage: mvp-hunter [flags] <command> [args]

Commands:
  login <email> <password>     sign in
  register <email> <password>  create an account and sign in
  logout                       sign out
  delete-account               delete the account and its records
  list                         show the tracker board
  set [-at HH:MM] [-x N -y N] <monster>
                               record a kill, now unless -at is given
  clear <monster>              forget the kill of one monster
  clear-all                    forget every kill
  watch                        follow countdowns and changes live
  version                      print the version

Flags:
`

func main() {
	authURL := flag.String("auth-url", envOr("MVPHUNTER_AUTH_URL", client.DefaultAuthServerURL), "URL of the auth server")
	apiURL := flag.String("api-url", envOr("MVPHUNTER_API_URL", client.DefaultAPIServerURL), "URL of the records API")
	storePath := flag.String("store", envOr("MVPHUNTER_STORE", defaultStorePath()), "path of the local store")
	offline := flag.Bool("offline", false, "keep records in the local store only")
	sortOrder := flag.String("sort", string(state.SortByStatus), "board order: status, name or level")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
	}
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stderr, "", log.DefaultLoggerFlag, parsedLogLevel).With("service", "client"))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if args[0] == "version" {
		fmt.Println(version.Get())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := localstore.NewSQLiteStore(ctx, *storePath)
	if err != nil {
		panic(fmt.Sprintf("Failed to open local store: %v", err))
	}
	defer kv.Close()

	monsters, err := catalog.Default()
	if err != nil {
		panic(fmt.Sprintf("Failed to load monster catalog: %v", err))
	}

	a := newApp(appOptions{
		AuthURL:   *authURL,
		APIURL:    *apiURL,
		Offline:   *offline,
		SortOrder: state.SortOrder(*sortOrder),
		KV:        kv,
		Catalog:   monsters,
	})
	defer a.close()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		switch {
		case client.IsLoginRequired(err):
			fmt.Fprintln(os.Stderr, "Not signed in. Run: mvp-hunter login <email> <password>")
		case errors.Is(err, errUsage):
			flag.Usage()
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mvp-hunter-local.db"
	}
	return filepath.Join(home, ".mvp-hunter.db")
}
