package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"murmur.click/internal/audio"
	"murmur.click/internal/clipboard"
	"murmur.click/internal/config"
	"murmur.click/internal/instance"
	"murmur.click/internal/llm"
	"murmur.click/internal/narrate"
	"murmur.click/internal/playback"
	"murmur.click/internal/server"
	"murmur.click/internal/telemetry"
	"murmur.click/internal/tts"
)

const (
	lockFileName        = "murmur.lock"
	managerDrainTimeout = 5 * time.Second
)

func (c *CLI) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the speech agent",
		Long:  "Run the speech agent: a loopback HTTP facade over a single playback queue.",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
}

func (c *CLI) runServe(cmd *cobra.Command, args []string) error {
	// -v only exists on the root command
	if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
		printVersion(cmd.OutOrStdout())
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}

	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	logCloser := c.setupLogging(cfg, cmd.ErrOrStderr())
	defer logCloser.Close()

	slog.Info("starting murmur",
		"version", Version,
		"addr", cfg.ListenAddr,
		"backend", cfg.AudioBackend,
		"volume", cfg.Volume)

	lock := instance.New(c.configManager.XDG().GetRuntimePath(lockFileName))
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	return c.serve(cmd.Context(), cfg)
}

// serve wires every component and blocks until ctx ends or the playback manager dies
func (c *CLI) serve(parent context.Context, cfg *config.Config) error {
	tel, err := telemetry.Setup(cfg.Telemetry.MetricsEnabled, Version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	output, err := audio.NewOutputFactory(float32(cfg.Volume)).CreateOutput(cfg.AudioBackend)
	if err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	defer func() {
		if err := output.Close(); err != nil {
			slog.Warn("audio output close failed", "error", err)
		}
	}()

	// Assigned before the manager runs, so every transition finds it
	var narrator *narrate.Narrator
	mgr := playback.NewManager(output, audio.NewDefaultRegistry(), playback.Options{
		QueueCapacity: cfg.Playback.QueueCapacity,
		MaxPending:    cfg.Playback.MaxPending,
		TickInterval:  cfg.TickInterval(),
		Retention:     cfg.Retention(),
		Meter:         tel.Meter("murmur.click/internal/playback"),
		OnTransition:  func(tr playback.Transition) { narrator.Observe(tr) },
	})

	synth := tts.NewAzure(cfg.Synthesis.Region, cfg.Synthesis.Key, cfg.Synthesis.Endpoint)
	synth.Voice = cfg.Synthesis.Voice
	synth.Language = cfg.Synthesis.Language
	synth.OutputFormat = cfg.Synthesis.OutputFormat
	synth.Timeout = cfg.SynthesisTimeout()
	if synth.Key == "" {
		slog.Warn("no speech service key configured; synthesis requests will fail")
	}

	generator := llm.NewOllama(cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.System, cfg.LLMTimeout())

	narrator = narrate.NewNarrator(mgr, synth, generator, clipboard.NewReader())
	narrator.Timeout = cfg.SynthesisTimeout()

	srv := server.New(mgr, narrator, server.Options{
		Metrics:         tel.Handler(),
		Meter:           tel.Meter("murmur.click/internal/server"),
		// long enough for a prompt narration to finish its current synthesis
		ShutdownTimeout: cfg.LLMTimeout() + cfg.SynthesisTimeout(),
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The manager outlives the HTTP facade so in-flight requests can finish
	mgrCtx, cancelMgr := context.WithCancel(context.Background())
	defer cancelMgr()
	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(mgrCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.ListenAddr)
	})
	g.Go(func() error {
		select {
		case <-mgr.Done():
			return mgr.Err()
		case <-gctx.Done():
			return nil
		}
	})
	serveErr := g.Wait()

	cancelMgr()
	var mgrErr error
	select {
	case mgrErr = <-runErr:
	case <-time.After(managerDrainTimeout):
		mgrErr = errors.New("playback manager did not stop in time")
	}

	if mgrErr != nil {
		slog.Error("playback manager failed", "error", mgrErr)
		return mgrErr
	}
	if serveErr != nil && !errors.Is(serveErr, playback.ErrManagerStopped) {
		return serveErr
	}
	slog.Info("murmur stopped")
	return nil
}
