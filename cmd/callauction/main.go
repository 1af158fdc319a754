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

	"github.com/efreitasn/callauction/internal/batch"
	"github.com/efreitasn/callauction/internal/config"
	"github.com/efreitasn/callauction/internal/engine"
	"github.com/efreitasn/callauction/internal/handler"
	"github.com/efreitasn/callauction/internal/publisher"
	"github.com/efreitasn/callauction/internal/service"
	"github.com/efreitasn/callauction/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	batchFile := flag.String("batch", "", "Clear a single batch of orders from `file` (use - for stdin) and exit")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *batchFile != "" {
		if err := runBatch(*batchFile, os.Stdin, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := runServer(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// runBatch reads one batch of orders, clears it and prints the report.
// Unreadable entries are reported on stderr and skipped.
func runBatch(path string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		res batch.Result
		err error
	)
	if path == "-" {
		res, err = batch.ReadLines(stdin)
	} else {
		res, err = batch.LoadFile(path)
	}
	if err != nil {
		return err
	}
	for _, le := range res.Invalid {
		fmt.Fprintf(stderr, "skipping %v\n", le)
	}

	report, err := batch.Clear(res.Orders, time.Now().UTC())
	if err != nil {
		return err
	}
	return report.Print(stdout)
}

func runServer(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	books := engine.NewBookManager()
	rounds := store.NewRoundStore()

	// Journal and publisher are optional. Leave the interfaces nil when
	// disabled rather than passing typed nil pointers.
	var journal service.Journal
	if cfg.JournalDir != "" {
		j, err := store.OpenJournal(cfg.JournalDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("journal close error", slog.String("error", err.Error()))
			}
		}()
		journal = j
		logger.Info("journal opened", slog.String("dir", cfg.JournalDir))
	}

	var pub service.Publisher = publisher.Nop{}
	if cfg.PublishEnabled() {
		k := publisher.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PublishTimeout, logger)
		defer func() {
			if err := k.Close(); err != nil {
				logger.Error("publisher close error", slog.String("error", err.Error()))
			}
		}()
		pub = k
		logger.Info("publishing rounds to kafka",
			slog.Any("brokers", cfg.Kafka.Brokers),
			slog.String("topic", cfg.Kafka.Topic),
		)
	}

	svc := service.NewAuctionService(books, rounds, journal, pub, logger)
	if err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("restore books: %w", err)
	}

	router := handler.NewRouter(svc, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
