package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"assetload/pkg/cli"
	"assetload/pkg/config"
	"assetload/pkg/display"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	res, err := AssetEngine(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(res.ExitCode)
}

func AssetEngine(ctx context.Context, args []string) (*cli.ExecutionResult, error) {
	// 1. Parse cli.def
	cliEngine, err := cli.MakeEngine()
	if err != nil {
		return nil, fmt.Errorf("INTERNAL ERROR:  parsing CLI definition: %w", err)
	}

	// 2. Parse command line arguments
	pr := cliEngine.Parse(args)
	verbose := pr.Invocation.GlobalBool("verbose")

	// 3. Initialize console and logging
	disp := display.NewConsole()
	defer disp.Close()
	disp.SetVerbose(verbose)

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 4. Report command line errors or help
	if pr.Error != nil {
		return nil, pr.Error
	}
	if pr.Help {
		cliEngine.PrintHelp(pr.HelpArgs...)
		return &cli.ExecutionResult{ExitCode: 0}, nil
	}

	// 5. Execute the command
	sysCfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}

	managers := &cli.Managers{
		Cfg:             sysCfg,
		Disp:            disp,
		Logger:          logger,
		Registry:        prometheus.NewRegistry(),
		CatalogOverride: pr.Invocation.GlobalString("catalog"),
	}
	cli.RegisterDefaults(cliEngine, managers)

	res, err := cliEngine.Execute(ctx, pr.Invocation)
	if err != nil {
		return nil, err
	}
	if res.Output != nil {
		disp.RenderOutput(res.Output)
	}
	return res, nil
}
