package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/procrastihator/internal/api"
	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/dispatch"
	"github.com/gyaneshwarpardhi/procrastihator/internal/gate"
	"github.com/gyaneshwarpardhi/procrastihator/internal/provider/openai"
	"github.com/gyaneshwarpardhi/procrastihator/internal/respond"
	"github.com/gyaneshwarpardhi/procrastihator/internal/session"
	"github.com/gyaneshwarpardhi/procrastihator/internal/transport"
)

type agentFlags struct {
	addr            string
	shutdownTimeout time.Duration
}

func newAgentCmd(root *rootFlags) *cobra.Command {
	flags := &agentFlags{}
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent: subscribe to the room, react to detections, serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), root, flags)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().DurationVar(&flags.shutdownTimeout, "shutdown-timeout", 15*time.Second, "how long to wait for in-flight responses on shutdown")
	return cmd
}

func runAgent(ctx context.Context, root *rootFlags, flags *agentFlags) error {
	level := new(slog.LevelVar)
	logger := newLogger(level)

	// Config
	loader, err := config.NewLoader(root.configPath, logger)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if l, err := parseLevel(cfg.LogLevel); err == nil {
		level.Set(l)
	}
	creds, err := config.LoadCredentials(root.envFile)
	if err != nil {
		return err
	}
	if err := creds.RequireOpenAI(); err != nil {
		return err
	}

	// Transport and collaborators
	conn, err := transport.Connect(creds.NATSURL, creds.NATSToken, cfg.Transport, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("nats close", "err", err)
		}
	}()
	ai := openai.New(creds.OpenAIAPIKey, creds.OpenAIBaseURL, cfg.Response)

	// Session state
	sess := session.New(
		session.Persona{Name: cfg.Session.DefaultPersona, Description: cfg.Session.DefaultPersonaDescription},
		transport.OpenTrack(conn, cfg.Transport.VoiceOutSubject()),
		nil,
	)
	g, err := gate.New(gate.Config{
		Cooldown:      cfg.Gate.Cooldown,
		HistorySize:   cfg.Gate.HistorySize,
		HistoryMaxAge: cfg.Gate.HistoryMaxAge,
	})
	if err != nil {
		return err
	}
	orch := respond.New(ai, ai, sess, respond.Timeouts{LLM: cfg.Response.LLMTimeout, TTS: cfg.Response.TTSTimeout}, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Dispatcher runs under its own context so queued items and responses can
	// finish after the signal arrives.
	d, err := dispatch.New(context.WithoutCancel(ctx), cfg, g, sess, orch, logger)
	if err != nil {
		return err
	}

	// Hot reload
	loader.OnChange(d.ApplyConfig)
	loader.OnChange(func(next *config.AgentConfig) {
		if l, err := parseLevel(next.LogLevel); err == nil {
			level.Set(l)
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	listener := transport.NewListener(d, ai, cfg.Response.STTTimeout, logger)
	if err := listener.Start(ctx, conn, cfg.Transport); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: flags.addr,
		Handler: api.New(api.Deps{
			Dispatcher: d,
			Transport:  conn,
			Gate:       g,
			Session:    sess,
			Feedback:   orch,
			Loader:     loader,
			Logger:     logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("agent started", "addr", flags.addr, "room", cfg.Transport.Room, "persona", sess.Persona().Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down")

		shutCtx, cancel := context.WithTimeout(context.Background(), flags.shutdownTimeout)
		defer cancel()
		listener.Stop()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		if err := d.Shutdown(shutCtx); err != nil {
			logger.Warn("responses cancelled at shutdown", "err", err)
		}
		return nil
	})

	err = eg.Wait()
	logger.Info("goodbye")
	return err
}
