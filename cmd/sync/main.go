package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/trellohooks/trellohooks/config"
	"github.com/trellohooks/trellohooks/tokens"
	"github.com/trellohooks/trellohooks/trello"
	"github.com/trellohooks/trellohooks/webhook"
	"github.com/trellohooks/trellohooks/webhook/sqlite"
)

/* Batch reconciliation command.
 *
 * Syncs every local record with Trello, then walks all known user tokens
 * (from the database, the command line, and an optional token file) and
 * adopts any remote webhooks missing locally.
 *
 *   sync [-tokens-file tokens.yaml] [token ...]
 */

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	tokensFile := flag.String("tokens-file", "", "YAML file with extra user tokens")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	extra := flag.Args()
	if *tokensFile != "" {
		fromFile, err := tokens.Load(*tokensFile)
		if err != nil {
			return err
		}
		extra = append(extra, fromFile...)
	}

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	client := trello.NewClient(cfg.TrelloAPIKey)
	engine := webhook.NewSyncEngine(repo, client, cfg.CallbackDomain, logger)

	report, err := engine.SyncFleet(ctx, extra)
	if err != nil {
		return err
	}

	fmt.Printf("synced: %d\ndiscovered: %d\nfailed: %d\n",
		report.Synced, report.Discovered, report.Failed)
	for _, id := range report.MissingRemote {
		fmt.Printf("no remote counterpart: %s\n", id)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d records or tokens failed to reconcile", report.Failed)
	}
	return nil
}
