package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kode4food/rewind"
)

type shell struct {
	coord *rewind.Coordinator[string]
	out   io.Writer
}

const shellHelp = `commands:
  begin                 start a transaction
  set <key> <value>     set a key
  del <key>             delete a key
  get <key>             print a key
  commit                commit the transaction
  rollback              roll the transaction back
  undo [tx]             undo the last change, or the last transaction
  redo [tx]             redo the last undone change, or transaction
  checkpoint            save a checkpoint of the current state
  revert <version>      return to a saved checkpoint
  dump                  print every key
  status                print version and transaction status
  help                  print this help
  quit                  leave the shell
`

var errQuit = errors.New("quit")

func init() {
	rootCmd.AddCommand(newShellCmd())
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Edit a string key-value store interactively",
		Long: `The shell command reads commands from standard input, one per line.
If a journal is configured, its events are replayed first and every
committed, undone, or redone change is journaled.

Example:
  rewind shell --bolt state.db
  echo "begin
set greeting hello
commit" | rewind shell --redis localhost:6379`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
}

func runShell(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, jcfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger
	defer func() { _ = logger.Sync() }()

	coord, err := rewind.New[string](cfg)
	if err != nil {
		return err
	}

	j, err := openJournal(ctx, jcfg, logger)
	if err != nil {
		return err
	}
	if j != nil {
		defer func() { _ = j.Close() }()

		n, err := coord.Replay(ctx, j, rewind.DefaultDecoders[string]())
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(out, "replayed %d events, version %d\n",
				n, coord.Version(),
			)
		}
		w := coord.AttachJournal(j)
		defer w.Stop()
	}

	sh := &shell{coord: coord, out: out}
	return sh.run(in, logger)
}

func (s *shell) run(in io.Reader, logger *zap.Logger) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		err := s.exec(fields[0], fields[1:])
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			logger.Debug("Shell command failed",
				zap.String("command", fields[0]),
				zap.Error(err),
			)
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}

	if s.coord.InTransaction() {
		fmt.Fprintln(s.out, "rolling back open transaction")
		if err := s.coord.Rollback(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *shell) exec(name string, args []string) error {
	c := s.coord
	switch name {
	case "begin":
		id, err := c.Begin()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "begin %s\n", id)
		return nil
	case "set":
		if len(args) < 2 {
			return errors.New("usage: set <key> <value>")
		}
		value := strings.Join(args[1:], " ")
		return s.change(rewind.Set(rewind.Key(args[0]), value))
	case "del":
		if len(args) != 1 {
			return errors.New("usage: del <key>")
		}
		return s.change(rewind.Delete[string](rewind.Key(args[0])))
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <key>")
		}
		v, err := c.Get(rewind.Key(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
		return nil
	case "commit":
		if err := c.Commit(); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "committed, version %d\n", c.Version())
		return nil
	case "rollback":
		if err := c.Rollback(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "rolled back")
		return nil
	case "undo":
		return s.step("undone", args, c.Undo, c.UndoTransaction)
	case "redo":
		return s.step("redone", args, c.Redo, c.RedoTransaction)
	case "checkpoint":
		snap, err := c.Checkpoint()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "checkpoint %d\n", snap.Version())
		return nil
	case "revert":
		if len(args) != 1 {
			return errors.New("usage: revert <version>")
		}
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid checkpoint version: %w", err)
		}
		if err := c.RevertTo(rewind.Version(v)); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "reverted, version %d\n", c.Version())
		return nil
	case "dump":
		printState(s.out, c.Contents())
		return nil
	case "status":
		tx, active := c.Active()
		fmt.Fprintf(s.out, "version %d\n", c.Version())
		if active {
			fmt.Fprintf(s.out, "transaction %s\n", tx)
		}
		fmt.Fprintf(s.out, "can undo: %t, can redo: %t\n",
			c.CanUndo(), c.CanRedo(),
		)
		return nil
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", name)
	}
}

// change executes cmd inside the active transaction, or in a transaction
// of its own when none is active
func (s *shell) change(cmd rewind.Command[string]) error {
	if s.coord.InTransaction() {
		return s.coord.Execute(cmd)
	}
	return s.coord.Run(func(ex rewind.Executor[string]) error {
		return ex.Execute(cmd)
	})
}

func (s *shell) step(
	verb string, args []string, one func() error, whole func() (int, error),
) error {
	switch {
	case len(args) == 0:
		if err := one(); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s, version %d\n", verb, s.coord.Version())
		return nil
	case len(args) == 1 && args[0] == "tx":
		n, err := whole()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %d commands, version %d\n",
			verb, n, s.coord.Version(),
		)
		return nil
	default:
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
}

func printState(out io.Writer, st rewind.State[string]) {
	for _, k := range slices.Sorted(maps.Keys(st)) {
		fmt.Fprintf(out, "%s = %s\n", k, st[k])
	}
}
