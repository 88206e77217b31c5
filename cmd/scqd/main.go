package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scenequeue/internal/config"
	"scenequeue/internal/journal"
	"scenequeue/internal/journal/backend"
	"scenequeue/internal/journal/store"
	"scenequeue/internal/scened"
)

func main() {
	listen := flag.String("listen", "", "listen address (tcp), overrides the config file")
	configPath := flag.String("config", "", "HCL config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg = c
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	var jw *journal.Writer
	if cfg.Journal != nil {
		st, err := openJournal(cfg.Journal)
		if err != nil {
			log.Error("open journal", "err", err)
			os.Exit(1)
		}
		defer st.Close()
		if jw, err = journal.NewWriter(st, log); err != nil {
			log.Error("open journal", "err", err)
			os.Exit(1)
		}
	}

	s := scened.NewServer(scened.Options{
		Listen:          cfg.Listen,
		History:         cfg.History,
		MaxRequestBytes: cfg.MaxRequestBytes,
		Journal:         jw,
		Logger:          log,
	})
	for _, sc := range cfg.Scenes {
		d, _ := sc.DebounceDuration()
		info, err := s.Handlers().SceneOpen(scened.SceneOpenParams{
			Name:                     sc.Name,
			Path:                     sc.Path,
			Watch:                    sc.Watch,
			AutoFlush:                sc.AutoFlush,
			DebounceMS:               int(d.Milliseconds()),
			View:                     sc.View,
			RespectDisplayAttributes: sc.RespectDisplayAttributes,
		})
		if err != nil {
			log.Error("open scene", "scene", sc.Name, "err", err)
			os.Exit(1)
		}
		log.Info("scene opened", "scene", info.ID, "path", info.Path, "watch", info.Watch)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = s.Close()
	}()

	if err := s.Run(); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			_, _ = fmt.Fprintf(os.Stderr, "listen address in use: %s\nTry: -listen 127.0.0.1:7448\n", cfg.Listen)
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func openJournal(j *config.JournalBlock) (store.Store, error) {
	loc, err := backend.Resolve(j.Backend, j.Path, ".")
	if err != nil {
		return nil, err
	}
	return loc.Open()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
