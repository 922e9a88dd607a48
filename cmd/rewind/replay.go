package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kode4food/rewind"
)

var (
	replayEvents bool
	replayFrom   int64
)

var errNoJournal = errors.New(
	"no journal configured, use --bolt, --redis, --postgres, or --etcd",
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().BoolVar(&replayEvents, "events", false, "List journaled events")
	cmd.Flags().Int64Var(&replayFrom, "from", 1, "First event version to list")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from a journal and print it",
		Long: `The replay command reads every event from the configured journal,
applies the committed, undone, and redone changes in order, and prints the
resulting state.

Example:
  rewind replay --bolt state.db
  rewind replay --redis localhost:6379 --events --from 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runReplay(ctx context.Context, out io.Writer) error {
	cfg, jcfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Logger.Sync() }()

	j, err := openJournal(ctx, jcfg, cfg.Logger)
	if err != nil {
		return err
	}
	if j == nil {
		return errNoJournal
	}
	defer func() { _ = j.Close() }()

	if replayEvents {
		evs, err := j.Read(ctx, rewind.Version(replayFrom))
		if err != nil {
			return err
		}
		for _, ev := range evs {
			fmt.Fprintf(out, "%d %s %s %s\n",
				ev.Version, ev.Type, ev.TxID, ev.Data,
			)
		}
		return nil
	}

	coord, err := rewind.New[string](cfg)
	if err != nil {
		return err
	}
	n, err := coord.Replay(ctx, j, rewind.DefaultDecoders[string]())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "replayed %d events, version %d\n", n, coord.Version())
	printState(out, coord.Contents())
	return nil
}
