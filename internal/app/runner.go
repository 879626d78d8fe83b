package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/swapd/internal/config"
	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/journal"
	"github.com/ggonzalez94/swapd/internal/out"
	"github.com/ggonzalez94/swapd/internal/schema"
	"github.com/ggonzalez94/swapd/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	logger   *logrus.Logger
	journal  *journal.Store
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.journal != nil {
		_ = state.journal.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError(err)
	return swaperr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Token swap orchestration service and CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return swaperr.Wrap(swaperr.KindUsage, "load configuration", err)
			}
			s.settings = settings
			s.logger = newLogger(s.runner.stderr, settings)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return swaperr.Wrap(swaperr.KindUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Aggregator request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Chain RPC endpoint")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain-id", 0, "EVM chain id")
	cmd.PersistentFlags().BoolVar(&s.flags.NoJournal, "no-journal", false, "Disable the attempt journal")

	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newAttemptsCommand())
	cmd.AddCommand(s.newSchemaCommand(cmd))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func (s *runtimeState) newSchemaCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Describe(root, strings.Join(args, " "))
			if err != nil {
				return swaperr.Wrap(swaperr.KindUsage, "build schema", err)
			}
			return out.Render(s.runner.stdout, data, s.settings.OutputMode)
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func newLogger(w io.Writer, settings config.Settings) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	level, err := logrus.ParseLevel(settings.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if settings.DevMode {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func (s *runtimeState) openJournal() *journal.Store {
	if !s.settings.JournalEnabled {
		return nil
	}
	if s.journal != nil {
		return s.journal
	}
	store, err := journal.Open(s.settings.JournalPath, s.settings.JournalLockPath)
	if err != nil {
		// Journaling is best effort; the swap still runs without it.
		s.logger.WithError(err).Warn("failed to open attempt journal")
		return nil
	}
	s.journal = store
	return store
}

func (s *runtimeState) renderError(err error) {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	kind := swaperr.KindInternal
	if e, ok := swaperr.As(err); ok {
		kind = e.Kind
	}
	body := map[string]any{
		"success": false,
		"error":   err.Error(),
		"kind":    string(kind),
		"code":    swaperr.ExitCode(err),
	}
	_ = out.Render(s.runner.stderr, body, mode)
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := swaperr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return swaperr.Wrap(swaperr.KindUsage, "invalid command input", err)
	}
	return swaperr.Wrap(swaperr.KindInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"invalid argument",
		"accepts ",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
