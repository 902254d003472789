package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/diagnostics"
	"github.com/standardbeagle/redefine/internal/mcp"
)

func mcpCommand(c *cli.Context) error {
	// stdout belongs to the protocol from here on
	debug.SetMCPMode(true)
	logger := diagnostics.NewDiagnosticLogger(true)

	env, err := newEnvironment(c, logger)
	if err != nil {
		logger.Errorf("failed to set up: %v", err)
		_ = logger.Close()
		return err
	}
	defer env.Close()

	for _, id := range env.cfg.LoaderIDs() {
		if err := env.loadBaseline(c.Context, id); err != nil {
			logger.Errorf("%v", err)
		}
	}

	server, err := mcp.NewServer(env.engine, env.host, env.cfg.Project.Root, logger)
	if err != nil {
		_ = logger.Close()
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Start(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if shutdownErr := server.Shutdown(context.Background()); err == nil {
		err = shutdownErr
	}
	return err
}
