package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/console"
	"github.com/normanking/seifmios/internal/lexicon"
	"github.com/normanking/seifmios/internal/logging"
	"github.com/normanking/seifmios/internal/metrics"
	"github.com/normanking/seifmios/internal/remote"
	"github.com/normanking/seifmios/internal/scheduler"
	"github.com/normanking/seifmios/internal/session"
	"github.com/normanking/seifmios/internal/store"
	"github.com/normanking/seifmios/internal/transport"
)

// connectFunc lets the session reach the transport hub, which can only be
// built once the session's inbound channel exists.
type connectFunc func(kind, target string) error

func (f connectFunc) Connect(kind, target string) error { return f(kind, target) }

func serveCmd() *cobra.Command {
	var consoleMode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot with its console, remote socket and transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if consoleMode != "" {
				cfg.Console.Mode = consoleMode
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&consoleMode, "console", "", "console mode: auto, tui, plain or off")
	return cmd
}

func runServe(cfg *config.Config) error {
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	snapshots := store.New(log)
	lex, err := loadLexicon(sigCtx, snapshots, cfg.Store)
	if err != nil {
		return err
	}

	var hub *transport.Hub
	sess := session.New(session.Options{
		Engine:    cfg.Engine,
		Source:    cfg.Console.Source,
		Author:    cfg.Console.Author,
		Lexicon:   lex,
		Store:     snapshots,
		StorePath: cfg.Store.Path,
		Connector: connectFunc(func(kind, target string) error { return hub.Connect(kind, target) }),
		Logger:    log,
	})

	// The session ends the run: quit or a signal stops it, and everything
	// else follows.
	runCtx, stopAll := context.WithCancel(sigCtx)
	defer stopAll()
	g, ctx := errgroup.WithContext(runCtx)

	hub = transport.NewHub(ctx, sess.Inbound(), cfg.Transports, log)

	g.Go(func() error {
		defer stopAll()
		return sess.Run(ctx)
	})

	g.Go(func() error {
		return console.New(sess, cfg.Console.Mode, log).Run(ctx)
	})

	if cfg.Remote.Enabled {
		g.Go(func() error {
			return remote.NewServer(sess, log).ListenAndServe(ctx, cfg.Remote.Address)
		})
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Address)
		})
	}

	if cfg.Store.Autosave != "" {
		sched := scheduler.NewScheduler(sess, log)
		if err := sched.ScheduleAutosave(cfg.Store.Autosave); err != nil {
			stopAll()
			g.Wait()
			return err
		}
		g.Go(func() error { return sched.Run(ctx) })
	}

	if err := config.Watch(getConfigPath(), log, func(c *config.Config) {
		retune(ctx, sess, c.Engine)
	}); err != nil {
		log.Warn("Config changes will not be picked up: %v", err)
	}

	hub.AutoConnect()

	err = g.Wait()
	hub.Wait()

	if cfg.Store.SaveOnExit {
		if saveErr := saveOnExit(sigCtx, snapshots, sess, cfg.Store.Path); saveErr != nil {
			log.Error("Final save failed: %v", saveErr)
			if err == nil {
				err = saveErr
			}
		}
	}
	log.Info("Goodbye")
	return err
}

// loadLexicon restores the last snapshot, or returns nil to start fresh.
func loadLexicon(ctx context.Context, snapshots *store.Store, sc config.StoreConfig) (*lexicon.Lexicon, error) {
	if !sc.LoadOnStart {
		return nil, nil
	}
	snap, err := snapshots.Load(ctx, sc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("No snapshot at %s, starting fresh", sc.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	lex, err := lexicon.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", sc.Path, err)
	}
	log.Info("Loaded %d messages from %s", lex.Len(), sc.Path)
	return lex, nil
}

func saveOnExit(parent context.Context, snapshots *store.Store, sess *session.Session, path string) error {
	snap, err := sess.Snapshot()
	if err != nil {
		return err
	}
	ctx, cancel := logging.DetachContextWithTimeout(parent, time.Minute)
	defer cancel()
	if err := snapshots.Save(ctx, path, snap); err != nil {
		return err
	}
	log.Info("Saved %d messages to %s", len(snap.Messages), path)
	return nil
}

// retune pushes reloaded engine tunables through the session's set command.
func retune(ctx context.Context, sess *session.Session, engine config.EngineConfig) {
	for _, args := range session.TuneCommands(engine) {
		execCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lines, err := sess.Exec(execCtx, args...)
		cancel()
		if err != nil {
			log.Debug("Retune stopped: %v", err)
			return
		}
		for _, line := range lines {
			log.Warn("%s %s: %s", args[1], args[2], line)
		}
	}
}
