package main

import (
	"context"
	"fmt"

	"profilewatch/internal/app"
	"profilewatch/internal/infra/config"
)

// withApp loads config, builds the app and optionally connects it, then
// calls fn. The app is always closed afterwards.
func withApp(ctx context.Context, connect bool, fn func(*app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Log.Warnf("Failed to close: %v", err)
		}
	}()

	if connect {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
	}
	return fn(a)
}
