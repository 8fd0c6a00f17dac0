// Command voicewire runs a voice call against a remote conversational agent,
// using raw pcm16 byte streams as the audio devices.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voicewire/voicewire/internal/call"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/pkg/agent/realtime"
	"github.com/voicewire/voicewire/pkg/audio/stream"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	personaName := flag.String("persona", "", "persona to call with (default: first configured)")
	inPath := flag.String("in", "-", "pcm16 input source: file path, or - for stdin")
	outPath := flag.String("out", "-", "pcm16 output sink: file path, or - for stdout")
	flag.Parse()

	// Optional .env for VOICEWIRE_API_KEY; absence is not an error.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicewire: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicewire starting",
		"version", version,
		"config", *configPath,
		"agent_url", cfg.Agent.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio streams ─────────────────────────────────────────────────────────
	in, closeIn, err := openSource(*inPath)
	if err != nil {
		slog.Error("failed to open input", "path", *inPath, "err", err)
		return 1
	}
	defer closeIn()

	out, closeOut, err := openSink(*outPath)
	if err != nil {
		slog.Error("failed to open output", "path", *outPath, "err", err)
		return 1
	}
	defer closeOut()

	devices := &stream.Provider{In: in, InRate: cfg.Audio.InputRate, Out: out}

	// ── Agent channel ─────────────────────────────────────────────────────────
	var dialOpts []realtime.Option
	if cfg.Agent.EventBuffer > 0 {
		dialOpts = append(dialOpts, realtime.WithEventBuffer(cfg.Agent.EventBuffer))
	}
	dialer := realtime.New(cfg.Agent.URL, cfg.ResolveAPIKey(), dialOpts...)

	// ── Controller ────────────────────────────────────────────────────────────
	var ctrlOpts []call.Option
	if cfg.Audio.FrameSize > 0 {
		ctrlOpts = append(ctrlOpts, call.WithFrameSize(cfg.Audio.FrameSize))
	}
	ctrl := call.New(devices, dialer, ctrlOpts...)

	persona, err := cfg.Persona(*personaName)
	if err != nil {
		slog.Error("persona lookup failed", "err", err)
		return 1
	}

	// ended is signalled when the call leaves the Active state for a terminal
	// one — remote hang-up, transport failure, or device loss.
	ended := make(chan call.State, 1)
	ctrl.OnStateChange(func(s call.State) {
		slog.Info("call state", "state", s)
		switch s {
		case call.StateIdle, call.StateDenied, call.StateError:
			select {
			case ended <- s:
			default:
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	// ── Metrics endpoint (optional) ───────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── The call ──────────────────────────────────────────────────────────────
	g.Go(func() error {
		if err := ctrl.StartCall(gctx, call.Persona{
			Voice:        persona.Voice,
			Instructions: persona.Instructions,
		}); err != nil {
			return fmt.Errorf("start call: %s: %w", ctrl.LastError(), err)
		}
		slog.Info("call active — press Ctrl+C to hang up", "call_id", ctrl.CallID(), "persona", persona.Name)

		select {
		case <-gctx.Done():
			ctrl.EndCall()
			slog.Info("call ended", "duration_s", ctrl.DurationSeconds())
			return nil
		case s := <-ended:
			if s == call.StateError {
				return fmt.Errorf("call failed: %s", ctrl.LastError())
			}
			slog.Info("call ended", "state", s, "duration_s", ctrl.DurationSeconds())
			stop() // release the rest of the group
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openSource opens the pcm16 byte source named by path; "-" means stdin.
func openSource(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// openSink opens the pcm16 byte sink named by path; "-" means stdout.
func openSink(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
