package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/lsp-server-go/documents"
	"github.com/ggoodman/lsp-server-go/documents/memory"
	redisstore "github.com/ggoodman/lsp-server-go/documents/redis"
	"github.com/ggoodman/lsp-server-go/examples/echo"
	"github.com/ggoodman/lsp-server-go/examples/words"
	"github.com/ggoodman/lsp-server-go/internal/config"
	"github.com/ggoodman/lsp-server-go/internal/engine"
	"github.com/ggoodman/lsp-server-go/internal/telemetry"
	"github.com/ggoodman/lsp-server-go/lspservice"
	"github.com/ggoodman/lsp-server-go/stdio"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve LSP over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.debug {
				cfg.Log.Level = "debug"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := serve(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
			if err != nil {
				return err
			}
			if code != ExitSuccess {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
}

// serve runs one stdio session and returns the exit code the protocol asked
// for.
func serve(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, logOut io.Writer) (int, error) {
	log, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		return ExitError, err
	}

	docs, closeDocs, err := openDocuments(cfg.Documents)
	if err != nil {
		return ExitError, err
	}
	defer func() {
		if err := closeDocs(); err != nil {
			log.Warn("serve.documents.close_fail", slog.String("err", err.Error()))
		}
	}()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.Trace.Endpoint, cfg.Server.Name, version)
	if err != nil {
		return ExitError, err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("serve.tracing.shutdown_fail", slog.String("err", err.Error()))
		}
	}()

	reg := lspservice.NewRegistry(lspservice.WithLogger(log))
	defer reg.Close()
	if _, err := reg.Add(words.New(docs, words.WithLogger(log))); err != nil {
		return ExitError, fmt.Errorf("register words handlers: %w", err)
	}
	if err := echo.Register(reg); err != nil {
		return ExitError, err
	}

	opts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithTracerProvider(tp),
		engine.WithDocuments(docs),
		engine.WithServerInfo(cfg.Server.Name, version),
		engine.WithConcurrency(cfg.Server.Concurrency),
		engine.WithParamsValidation(cfg.Server.ValidateParams),
	}
	if cfg.Watch.Enabled {
		opts = append(opts, engine.WithFileWatchFallback(cfg.Watch.Root))
	}
	eng := engine.New(reg, opts...)

	h := stdio.NewHandler(eng, stdio.WithIO(in, out), stdio.WithLogger(log))
	if err := h.Serve(ctx); err != nil {
		return ExitError, err
	}
	return eng.ExitCode(), nil
}

func openDocuments(cfg config.DocumentsConfig) (documents.Store, func() error, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		s, err := redisstore.New(redisstore.Config{Client: client, KeyPrefix: cfg.KeyPrefix, TTL: cfg.TTL})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, s.Shutdown, nil
	default:
		s, err := memory.New(cfg.MaxDocuments)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}
