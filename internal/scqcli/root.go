// Package scqcli implements the scq command line: replaying and watching
// scene files through a change queue and inspecting the batch journal.
package scqcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenequeue/internal/core/explain"
	"scenequeue/internal/journal"
	"scenequeue/internal/journal/backend"
	"scenequeue/internal/journal/store"
	"scenequeue/internal/version"
)

func NewRootCommand() *cobra.Command {
	opts := newDefaultOptions()
	cmd := &cobra.Command{
		Use:           "scq",
		Short:         "Scene change-queue tool",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts := optionsFrom(cmd); opts != nil {
			return opts.Prepare()
		}
		return nil
	}

	cmd.AddCommand(newReplayCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newJournalCommand())
	return cmd
}

func mustOptions(cmd *cobra.Command) (*Options, error) {
	opts := optionsFrom(cmd)
	if opts == nil {
		return nil, fmt.Errorf("options missing")
	}
	return opts, nil
}

func openJournal(opts *Options) (store.Store, error) {
	return backend.Spec{Backend: opts.Backend, Path: opts.JournalPath}.Open()
}

// openWriter opens the journal for appending when record is set. The
// returned close func is always safe to call.
func openWriter(cmd *cobra.Command, opts *Options, record bool) (*journal.Writer, func(), error) {
	if !record {
		return nil, func() {}, nil
	}
	st, err := openJournal(opts)
	if err != nil {
		return nil, func() {}, err
	}
	w, err := journal.NewWriter(st, opts.Logger(cmd.ErrOrStderr()))
	if err != nil {
		_ = st.Close()
		return nil, func() {}, err
	}
	return w, func() { _ = st.Close() }, nil
}

func newExplain(opts *Options) *explain.Collector {
	if opts.Explain == "" {
		return nil
	}
	return explain.NewCollector(explain.Options{Format: opts.Explain})
}
