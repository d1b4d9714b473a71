package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/adapters/filter"
	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/di"
	"github.com/mikey/greylist-filter/internal/ports"
)

func main() {
	flags, err := di.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var decision core.Decision
	err = container.Invoke(func(logger *zap.Logger, f ports.EmailFilter, store ports.GreylistStore) error {
		defer logger.Sync()
		defer store.Stop()

		decision, err = check(context.Background(), flags, logger, f)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Exit status mirrors the decision so scripts can test it
	os.Exit(decision.Value)
}

func check(ctx context.Context, flags *di.CLIFlags, logger *zap.Logger, f ports.EmailFilter) (core.Decision, error) {
	if signals := flags.Signals(); signals != nil {
		cli, ok := f.(*filter.CliFilter)
		if !ok {
			return core.Decision{}, fmt.Errorf("explicit signals need the cli filter")
		}
		return cli.Decide(ctx, signals), nil
	}

	var r io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return core.Decision{}, fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		r = file
		logger.Info("Reading message from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading message from stdin")
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return core.Decision{}, fmt.Errorf("failed to read message: %w", err)
	}

	return f.ProcessMessage(ctx, &core.Message{
		Sender:         flags.From,
		ClientHostname: flags.Hostname,
		Raw:            raw,
	})
}
