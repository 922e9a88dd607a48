package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kode4food/rewind"
	"github.com/kode4food/rewind/journal"
)

var (
	// Global flags
	configPath    string
	verbose       bool
	boltPath      string
	redisAddr     string
	postgresDSN   string
	etcdEndpoints []string
)

var rootCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Transactional key-value state with undo and redo",
	Long: `rewind drives a transactional key-value store from the command line.
Changes are grouped into transactions that can be committed, rolled back,
undone, and redone. State-changing events can be journaled to bbolt, Redis,
Postgres, or etcd and replayed later.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&boltPath, "bolt", "", "Journal to a bbolt file")
	pf.StringVar(&redisAddr, "redis", "", "Journal to a Redis server")
	pf.StringVar(&postgresDSN, "postgres", "", "Journal to a Postgres database")
	pf.StringSliceVar(&etcdEndpoints, "etcd", nil, "Journal to etcd endpoints")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the command
// line overrides
func loadConfig() (rewind.Config, journal.Config, error) {
	cfg := rewind.DefaultConfig()
	var jcfg journal.Config

	if configPath != "" {
		var err error
		if cfg, err = rewind.LoadConfig(configPath); err != nil {
			return cfg, jcfg, err
		}
		if jcfg, err = journal.LoadConfig(configPath); err != nil {
			return cfg, jcfg, err
		}
	}

	if boltPath != "" {
		jcfg.Bolt.Path = boltPath
	}
	if redisAddr != "" {
		jcfg.Redis.Addr = redisAddr
	}
	if postgresDSN != "" {
		jcfg.Postgres.DSN = postgresDSN
	}
	if len(etcdEndpoints) > 0 {
		jcfg.Etcd.Endpoints = etcdEndpoints
	}

	logger, err := newLogger()
	if err != nil {
		return cfg, jcfg, err
	}
	cfg.Logger = logger
	return cfg, jcfg, nil
}

func newLogger() (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// openJournal opens the configured journal. It returns nil when no backend
// is configured
func openJournal(
	ctx context.Context, jcfg journal.Config, logger *zap.Logger,
) (rewind.Journal, error) {
	j, err := journal.Open(ctx, jcfg, logger)
	if errors.Is(err, journal.ErrNoJournal) {
		return nil, nil
	}
	return j, err
}
