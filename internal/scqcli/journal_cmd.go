package scqcli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scenequeue/internal/journal"
)

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded batches",
	}
	cmd.AddCommand(newJournalListCommand())
	cmd.AddCommand(newJournalShowCommand())
	cmd.AddCommand(newJournalFindCommand())
	cmd.AddCommand(newJournalSearchCommand())
	cmd.AddCommand(newJournalInfoCommand())
	return cmd
}

func newJournalInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the journal backend, size and storage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			st, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := journal.Describe(st)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), RenderInfo(info, opts.JSONL))
			return err
		},
	}
}

func newJournalListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			st, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.Batches(limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), RenderBatches(infos, opts.JSONL))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum batches to list")
	return cmd
}

func newJournalShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <seq>",
		Short: "Print the entries of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			seq, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seq %q", args[0])
			}
			st, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.List(seq)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, opts.JSONL))
			return err
		},
	}
}

func newJournalFindCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find <object-id>",
		Short: "Print every entry recorded for a document object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			st, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.FindObject(strings.TrimSpace(args[0]), limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, opts.JSONL))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries")
	return cmd
}

func newJournalSearchCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search entries by object or material name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			st, err := openJournal(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, opts.JSONL))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries")
	return cmd
}
