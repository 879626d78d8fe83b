package app

import (
	"github.com/spf13/cobra"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/journal"
	"github.com/ggonzalez94/swapd/internal/out"
)

func (s *runtimeState) newAttemptsCommand() *cobra.Command {
	root := &cobra.Command{Use: "attempts", Short: "Inspect journaled swap attempts"}

	var status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.requireJournal()
			if err != nil {
				return err
			}
			if status != "" && status != journal.StatusSucceeded && status != journal.StatusFailed {
				return swaperr.New(swaperr.KindUsage, "status must be succeeded or failed")
			}
			items, err := store.List(status, limit)
			if err != nil {
				return swaperr.Wrap(swaperr.KindInternal, "list attempts", err)
			}
			return out.Render(s.runner.stdout, items, s.settings.OutputMode)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status (succeeded|failed)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum attempts to return")

	showCmd := &cobra.Command{
		Use:   "show <attempt-id>",
		Short: "Show one attempt with its full trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.requireJournal()
			if err != nil {
				return err
			}
			attempt, err := store.Get(args[0])
			if err != nil {
				return swaperr.Wrap(swaperr.KindUsage, "read attempt", err)
			}
			return out.Render(s.runner.stdout, attempt, s.settings.OutputMode)
		},
	}

	root.AddCommand(listCmd)
	root.AddCommand(showCmd)
	return root
}

func (s *runtimeState) requireJournal() (*journal.Store, error) {
	store := s.openJournal()
	if store == nil {
		return nil, swaperr.New(swaperr.KindUsage, "attempt journal is disabled")
	}
	return store, nil
}
