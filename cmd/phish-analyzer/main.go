package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/di"
	"github.com/mikey/phish-filter/internal/ports"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	service *core.AnalysisService,
	classifier core.Classifier,
) error {
	defer logger.Sync()
	defer func() {
		if closer, ok := classifier.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close classifier", zap.Error(err))
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.InputDir != "" {
		b := &batch{
			service:    service,
			logger:     logger,
			out:        os.Stdout,
			progress:   os.Stderr,
			workers:    flags.Workers,
			jsonOutput: flags.JSONOutput,
		}
		return b.run(ctx, flags.InputDir)
	}

	var (
		raw []byte
		err error
	)
	if flags.InputFile != "" {
		logger.Debug("Reading message from file", zap.String("file", flags.InputFile))
		raw, err = os.ReadFile(flags.InputFile)
		if err != nil {
			return &core.IOError{Op: "read message", Path: flags.InputFile, Err: err}
		}
	} else {
		logger.Debug("Reading message from stdin")
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return &core.IOError{Op: "read message", Path: "stdin", Err: err}
		}
	}

	_, err = emailFilter.ProcessMessage(ctx, raw)
	return err
}
