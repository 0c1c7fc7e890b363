// authctl is the operator CLI for the credential store: seed principals,
// revoke or disable them, list sessions and mint device credentials.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"bottle-monitor/backend/internal/app"
	"bottle-monitor/backend/internal/config"
	"bottle-monitor/backend/internal/logging"
)

func main() {
	root := newRootCmd(buildFromEnv)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildFromEnv wires the service against the configured store backend.
func buildFromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)), app.Options{})
}
