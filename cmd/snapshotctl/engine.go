package main

import (
	"fmt"

	"dev.helix.snapshots/internal/engine"
	"dev.helix.snapshots/internal/engineconfig"
)

func openEngine() (*engine.Engine, error) {
	cfg, err := engineconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	e, err := engine.New(workspacePath, engine.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("constructing engine: %w", err)
	}
	if err := e.Init(); err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}
	return e, nil
}
