// Package commands implements the nestedsetctl subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/henderiw/nestedset/pkg/config"
	"github.com/henderiw/nestedset/pkg/entry"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/henderiw/nestedset/pkg/store/badgerstore"
	"github.com/henderiw/nestedset/pkg/store/memstore"
	"github.com/spf13/cobra"
)

type (
	Node     = nestedset.Node[string, entry.Entry]
	TreeNode = nestedset.TreeNode[string, entry.Entry]
	Service  = nestedset.Service[string, entry.Entry]
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	seedPath   string

	logger *slog.Logger
	svc    *Service
	close  func() error
}

func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "nestedsetctl",
		Short: "Inspect and edit a nested-set forest",
		Long: `nestedsetctl manages a forest of named, labeled nodes stored as nested
intervals, either in memory or in a BadgerDB directory.

The memory backend starts empty on every invocation unless --seed is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: config.yaml in ., $HOME/.nestedset or /etc/nestedset)")
	rootCmd.PersistentFlags().StringVar(&a.seedPath, "seed", "", "YAML file of node records loaded as-is before the command runs")

	rootCmd.AddCommand(
		newCreateCommand(a),
		newDeleteCommand(a),
		newMoveCommand(a),
		newMoveUpCommand(a),
		newMoveDownCommand(a),
		newRenameCommand(a),
		newRebuildCommand(a),
		newValidateCommand(a),
		newGetCommand(a),
		newListCommand(a),
		newTreeCommand(a),
		newAncestorsCommand(a),
		newDescendantsCommand(a),
		newExportCommand(a),
	)

	return rootCmd
}

// run wraps a subcommand so the store is open while it runs and closed
// afterwards, also when it fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd.Context(), cmd.ErrOrStderr()); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.shutdown())
		}()
		return fn(cmd, args)
	}
}

func (a *app) open(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.logger = newLogger(cfg, logOut)

	var seed []Node
	if a.seedPath != "" {
		f, err := os.Open(a.seedPath)
		if err != nil {
			return fmt.Errorf("open seed: %w", err)
		}
		defer f.Close()
		seed, err = readRecords(f)
		if err != nil {
			return fmt.Errorf("read seed %s: %w", a.seedPath, err)
		}
	}

	var store nestedset.Store[string, entry.Entry]
	switch cfg.Store.Backend {
	case config.BackendBadger:
		s, err := badgerstore.Open[string, entry.Entry](cfg.BadgerOptions(a.logger.With("component", "badger")))
		if err != nil {
			return err
		}
		if len(seed) > 0 {
			if err := s.Load(ctx, seed...); err != nil {
				_ = s.Close()
				return fmt.Errorf("load seed: %w", err)
			}
		}
		store, a.close = s, s.Close
	default:
		s, err := memstore.New[string, entry.Entry](cfg.MemoryOptions(), seed...)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		store = s
	}
	if len(seed) > 0 {
		a.logger.Info("seeded store", "backend", cfg.Store.Backend, "nodes", len(seed))
	}

	a.svc = nestedset.New(store, cfg.ServiceOptions(a.logger))
	return nil
}

func (a *app) shutdown() error {
	if a.close == nil {
		return nil
	}
	err := a.close()
	a.close = nil
	return err
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
