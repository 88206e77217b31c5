package scqcli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scenequeue/internal/core/queue"
	"scenequeue/internal/document"
	"scenequeue/internal/journal"
	"scenequeue/internal/model"
)

type sceneFlags struct {
	view                     string
	respectDisplayAttributes bool
	record                   bool
}

func (f *sceneFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.view, "view", "", "view object id to deliver instead of the active view")
	cmd.Flags().BoolVar(&f.respectDisplayAttributes, "respect-display-attributes", false, "omit objects hidden by the display attributes")
	cmd.Flags().BoolVar(&f.record, "record", false, "append delivered batches to the journal")
}

func (f *sceneFlags) options(opts *Options, cmd *cobra.Command) (queue.Options, error) {
	qo := queue.Options{
		RespectDisplayAttributes: f.respectDisplayAttributes,
		Logger:                   opts.Logger(cmd.ErrOrStderr()),
	}
	if v := strings.TrimSpace(f.view); v != "" {
		id, err := model.ParseObjectID(v)
		if err != nil {
			return qo, fmt.Errorf("invalid --view: %w", err)
		}
		qo.View = id
	}
	return qo, nil
}

func newReplayCommand() *cobra.Command {
	var flags sceneFlags
	cmd := &cobra.Command{
		Use:   "replay <scene.yaml>",
		Short: "Build the world for a scene file and print the resulting batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := mustOptions(cmd)
			if err != nil {
				return err
			}
			qo, err := flags.options(opts, cmd)
			if err != nil {
				return err
			}
			ex := newExplain(opts)
			if ex != nil {
				qo.Explain = ex
			}

			snap, err := document.LoadSnapshot(args[0])
			if err != nil {
				return err
			}
			q, err := queue.NewFromSnapshot(document.NewMemory(snap), queue.NewCollector(), qo)
			if err != nil {
				return err
			}
			defer q.Close()

			w, closeJournal, err := openWriter(cmd, opts, flags.record)
			if err != nil {
				return err
			}
			defer closeJournal()

			b := q.CreateWorld(true)
			if err := emitBatch(cmd, opts, w, b); err != nil {
				return err
			}
			if ex != nil {
				return ex.Emit(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

// emitBatch prints b and, with a writer, records it. Printed rows carry the
// journal sequence when the batch was recorded.
func emitBatch(cmd *cobra.Command, opts *Options, w *journal.Writer, b model.Batch) error {
	if w != nil {
		seq, err := w.Record(b)
		if err != nil {
			return err
		}
		if seq != 0 {
			b.Seq = seq
		}
	}
	entries, err := journal.Entries(b)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, opts.JSONL))
	return err
}
