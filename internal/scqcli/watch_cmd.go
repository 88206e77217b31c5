package scqcli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scenequeue/internal/core/queue"
	"scenequeue/internal/document"
)

func newWatchCommand() *cobra.Command {
	var (
		flags    sceneFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <scene.yaml>",
		Short: "Print the batch produced by every save of a scene file",
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
			qo.NotifyChanges = true
			ex := newExplain(opts)
			if ex != nil {
				qo.Explain = ex
			}

			src, err := document.OpenFile(args[0], document.FileSourceOptions{
				Debounce:         debounce,
				AdaptiveDebounce: true,
				Logger:           qo.Logger,
			})
			if err != nil {
				return err
			}
			defer src.Close()

			q, err := queue.New(src.Document(), queue.NewCollector(), qo)
			if err != nil {
				return err
			}
			defer q.Close()

			w, closeJournal, err := openWriter(cmd, opts, flags.record)
			if err != nil {
				return err
			}
			defer closeJournal()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- src.Run(ctx) }()

			if err := emitBatch(cmd, opts, w, q.CreateWorld(true)); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					<-errCh
					return nil
				case err := <-errCh:
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				case <-q.Updates():
					if ex != nil {
						ex.Reset()
					}
					b := q.Flush(true)
					if b.Empty() {
						continue
					}
					if err := emitBatch(cmd, opts, w, b); err != nil {
						return err
					}
					if ex != nil {
						_ = ex.Emit(cmd.ErrOrStderr())
					}
				}
			}
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "delay before reloading a saved scene")
	return cmd
}
