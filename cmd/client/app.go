package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/client"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/localstore"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/network"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/state"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/workers"
)

var errUsage = errors.New("invalid usage")

type appOptions struct {
	AuthURL   string
	APIURL    string
	Offline   bool
	SortOrder state.SortOrder
	KV        localstore.KV
	Catalog   *catalog.Catalog
}

type app struct {
	out       io.Writer
	offline   bool
	sortOrder state.SortOrder
	catalog   *catalog.Catalog
	store     *state.Store
	sessions  *client.SessionManager
	api       *client.APIClient
	deaths    *localstore.DeathStore
	tracker   *client.Tracker
	stopAuth  func()
}

func newApp(opts appOptions) *app {
	a := &app{
		out:       os.Stdout,
		offline:   opts.Offline,
		sortOrder: opts.SortOrder,
		catalog:   opts.Catalog,
		store:     state.NewStore(),
		sessions: client.NewSessionManager(client.NewSessionManagerOptions{
			Auth:  client.NewAuthClient(client.NewAuthClientOptions{URL: opts.AuthURL}),
			Store: opts.KV,
		}),
		deaths: localstore.NewDeathStore(localstore.NewDeathStoreOptions{
			KV:      opts.KV,
			Catalog: opts.Catalog,
		}),
	}
	a.api = client.NewAPIClient(client.NewAPIClientOptions{
		URL:    opts.APIURL,
		Tokens: a.sessions,
	})

	trackerOpts := client.NewTrackerOptions{
		Backend:  a.api,
		Sessions: a.sessions,
		Store:    a.store,
	}
	if a.offline {
		trackerOpts.Backend = a.deaths
		trackerOpts.Sessions = nil
	}
	a.tracker = client.NewTracker(trackerOpts)
	a.stopAuth = a.sessions.OnAuthStateChange(a.tracker.HandleAuthStateChange)
	return a
}

func (a *app) close() {
	a.stopAuth()
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args, false)
	case "register":
		return a.login(ctx, args, true)
	case "logout":
		if err := a.sessions.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out")
		return nil
	case "delete-account":
		if err := a.sessions.DeleteAccount(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Account deleted")
		return nil
	case "list":
		if err := a.tracker.Refresh(ctx); err != nil {
			return err
		}
		a.printBoard(time.Now())
		return nil
	case "set":
		return a.set(ctx, args)
	case "clear":
		if len(args) != 1 {
			return errUsage
		}
		monster, err := a.findMonster(args[0])
		if err != nil {
			return err
		}
		if err := a.tracker.ClearRecord(ctx, monster.ID); err != nil {
			return a.operationError(err)
		}
		fmt.Fprintf(a.out, "Cleared %s\n", monster.Name)
		return nil
	case "clear-all":
		if err := a.tracker.ClearAll(ctx); err != nil {
			return a.operationError(err)
		}
		fmt.Fprintln(a.out, "Cleared every record")
		return nil
	case "watch":
		return a.watch(ctx)
	}
	return errUsage
}

func (a *app) login(ctx context.Context, args []string, register bool) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	email := args[0]
	password := os.Getenv("MVPHUNTER_PASSWORD")
	if len(args) == 2 {
		password = args[1]
	}
	if password == "" {
		return errUsage
	}

	signIn := a.sessions.SignIn
	if register {
		signIn = a.sessions.SignUp
	}
	session, err := signIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", session.Email)
	return nil
}

func (a *app) set(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("set", flag.ContinueOnError)
	at := flags.String("at", "", "time of death as HH:MM, today or yesterday if later than now")
	x := flags.Float64("x", -1, "horizontal map position, 0 to 100")
	y := flags.Float64("y", -1, "vertical map position, 0 to 100")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if flags.NArg() != 1 {
		return errUsage
	}
	monster, err := a.findMonster(flags.Arg(0))
	if err != nil {
		return err
	}

	var deathTime *time.Time
	if *at != "" {
		var hour, minute int
		if _, err := fmt.Sscanf(*at, "%d:%d", &hour, &minute); err != nil {
			return fmt.Errorf("invalid time %q, expected HH:MM", *at)
		}
		resolved, err := respawn.ResolveTimeOfDay(time.Now(), hour, minute)
		if err != nil {
			return err
		}
		deathTime = &resolved
	}

	var position *models.MapPosition
	if *x >= 0 || *y >= 0 {
		position = &models.MapPosition{X: *x, Y: *y}
		if !position.Valid() {
			return fmt.Errorf("map position must be within 0..100")
		}
	}

	if err := a.tracker.SetDeathTime(ctx, monster.ID, deathTime, position); err != nil {
		return a.operationError(err)
	}
	r, _ := a.tracker.Snapshot().Record(monster.ID)
	fmt.Fprintf(a.out, "%s died at %s\n", monster.Name, respawn.FormatClock(r.DeathTime.Local()))
	return nil
}

// watch prints status changes of every tracked monster until interrupted.
func (a *app) watch(ctx context.Context) error {
	if err := a.tracker.Refresh(ctx); err != nil {
		return err
	}
	a.printBoard(time.Now())

	ctx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()

	if a.offline {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workers.NewPruneWorker(workers.NewPruneWorkerOptions{Pruner: a.deaths}).Start(ctx)
		}()
	} else {
		events := make(chan changes.Event, 16)
		feed, err := a.connectFeed(ctx)
		if err != nil {
			return err
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(events)
			defer feed.Close()
			if err := feed.Listen(ctx, events); err != nil {
				log.Error("Change feed stopped: %v", err)
				fmt.Fprintln(os.Stderr, "Live updates stopped")
			}
		}()
		go func() {
			defer wg.Done()
			workers.NewFeedWorker(workers.NewFeedWorkerOptions{
				Events:       events,
				StateManager: a.store,
			}).Start(ctx)
		}()
	}

	ticks := make(chan workers.Tick, 16)
	supervisor := workers.NewCountdownSupervisor(workers.NewCountdownSupervisorOptions{
		Watcher: a.store,
		Catalog: a.catalog,
		Ticks:   ticks,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Start(ctx)
	}()

	statuses := make(map[string]respawn.Status)
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticks:
			if statuses[tick.MvpID] == tick.Respawn.Status {
				continue
			}
			statuses[tick.MvpID] = tick.Respawn.Status
			monster, _ := a.catalog.Lookup(tick.MvpID)
			fmt.Fprintf(a.out, "%s  %-16s %-14s %s\n",
				respawn.FormatClock(time.Now()),
				monster.Name,
				tick.Respawn.Status,
				respawn.FormatCountdown(tick.Respawn.CountdownSeconds),
			)
		}
	}
}

// connectFeed dials the change feed, refreshing the session once if the
// token is rejected.
func (a *app) connectFeed(ctx context.Context) (*network.FeedClient, error) {
	for attempt := 0; ; attempt++ {
		token, err := a.sessions.Token(ctx)
		if err != nil {
			return nil, err
		}
		feed := network.NewFeedClient(network.NewFeedClientOptions{
			URL:   a.api.StreamURL(),
			Token: token,
		})
		err = feed.Connect(ctx)
		if err == nil {
			return feed, nil
		}
		if attempt > 0 || !network.IsUnauthorized(err) {
			return nil, err
		}
		if _, err := a.sessions.RefreshSession(ctx); err != nil {
			return nil, err
		}
	}
}

func (a *app) printBoard(now time.Time) {
	snapshot := a.tracker.Snapshot()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMONSTER\tLV\tSTATUS\tCOUNTDOWN\tWINDOW\tPOSITION")
	for _, row := range state.Board(a.catalog, snapshot, now, a.sortOrder) {
		status, countdown, window, position := "-", "-", "-", "-"
		if row.Respawn != nil {
			status = string(row.Respawn.Status)
			countdown = respawn.FormatCountdown(row.Respawn.CountdownSeconds)
			window = respawn.FormatClock(row.Respawn.WindowOpen.Local()) + "-" + respawn.FormatClock(row.Respawn.WindowClose.Local())
		}
		if row.Record != nil && row.Record.MapPosition != nil {
			position = fmt.Sprintf("%.0f,%.0f", row.Record.MapPosition.X, row.Record.MapPosition.Y)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n", row.Monster.ID, row.Monster.Name, row.Monster.Level, status, countdown, window, position)
	}
	w.Flush()
}

// findMonster accepts a catalog id or a case-insensitive name.
func (a *app) findMonster(query string) (catalog.Monster, error) {
	if m, ok := a.catalog.Lookup(query); ok {
		return m, nil
	}
	for _, m := range a.catalog.List() {
		if strings.EqualFold(m.Name, query) {
			return m, nil
		}
	}
	return catalog.Monster{}, fmt.Errorf("unknown monster %q", query)
}

func (a *app) operationError(err error) error {
	if client.IsLoginRequired(err) {
		return err
	}
	if message := a.tracker.Snapshot().LastError(); message != "" {
		return errors.New(message)
	}
	return err
}
