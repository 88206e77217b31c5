package scqcli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"scenequeue/internal/journal/backend"
)

type Options struct {
	JournalPath string
	Backend     string
	LogLevel    string
	Explain     string
	JSONL       bool
}

func (o *Options) Prepare() error {
	o.normalize()

	loc, err := backend.Resolve(o.Backend, o.JournalPath, ".")
	if err != nil {
		return fmt.Errorf("invalid --backend: %w", err)
	}
	o.Backend, o.JournalPath = loc.Backend, loc.Path

	if _, err := parseLevel(o.LogLevel); err != nil {
		return err
	}
	switch o.Explain {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid --explain %q (expected: text|json)", o.Explain)
	}
	return nil
}

func (o *Options) normalize() {
	o.LogLevel = strings.ToLower(strings.TrimSpace(o.LogLevel))
	if o.LogLevel == "" {
		o.LogLevel = "warn"
	}
	o.Explain = strings.ToLower(strings.TrimSpace(o.Explain))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid --log-level %q (expected: debug|info|warn|error)", s)
}

// Logger writes text logs to w at the configured level.
func (o *Options) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(o.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	v := root.Context().Value(optionsKey{})
	opts, _ := v.(*Options)
	return opts
}

func bindFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVarP(&opts.JournalPath, "journal", "j", opts.JournalPath, "journal to read or write (/path/to/journal.db)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", opts.Backend, "journal backend: sqlite|bleve")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&opts.JSONL, "jsonl", opts.JSONL, "output as JSONL")
	cmd.PersistentFlags().StringVar(&opts.Explain, "explain", opts.Explain, "print flush diagnostics to stderr (text|json)")
	if f := cmd.PersistentFlags().Lookup("explain"); f != nil {
		f.NoOptDefVal = "text"
	}
}

func ExecuteForTest(cmd *cobra.Command) (string, Options, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	opts := optionsFrom(cmd)
	if opts == nil {
		return out.String(), Options{}, err
	}
	opts.normalize()

	return out.String(), *opts, err
}

func newDefaultOptions() *Options {
	return &Options{
		JournalPath: ".scq/journal.db",
		Backend:     "sqlite",
		LogLevel:    "warn",
	}
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}
