// Command polyscope is the CLI front-end wiring the store, indexer,
// resolver, fetcher, account fetcher, and the analyze/monitor
// pipelines together (spec §6).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"polyscope/accounts"
	"polyscope/analyze"
	"polyscope/config"
	"polyscope/fetch"
	"polyscope/indexer"
	"polyscope/resolver"
	"polyscope/store"
)

// deps bundles the wiring every subcommand needs, built fresh per
// invocation from the loaded config.
type deps struct {
	cfg      *config.Config
	st       *store.Store
	idx      *indexer.Client
	resolver *resolver.Resolver
	fetcher  *fetch.Fetcher
	accts    *accounts.Fetcher
	analyze  *analyze.Pipeline
	log      zerolog.Logger
}

const fetchStalenessSeconds = 300

func buildDeps(cfg *config.Config) (*deps, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	idx := indexer.New(indexer.Config{
		URL:        cfg.IndexerSubgraphURL,
		APIKey:     cfg.IndexerAPIKey,
		Timeout:    time.Duration(cfg.IndexerTimeoutSeconds) * time.Second,
		MaxRetries: cfg.IndexerMaxRetries,
		Logger:     log,
	})

	res := resolver.New(st, idx)
	f := fetch.New(st, idx, fetchStalenessSeconds, log)
	acct := accounts.New(st, idx, log)
	ap := analyze.New(st, idx, res, f, acct, cfg.Scoring, log)

	return &deps{cfg: cfg, st: st, idx: idx, resolver: res, fetcher: f, accts: acct, analyze: ap, log: log}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "polyscope",
		Short: "Prediction-market trade surveillance",
	}

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newInvestigateCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newDBCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
