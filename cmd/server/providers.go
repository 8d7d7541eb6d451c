package main

import (
	"task-manager/internal/store/factory"
	"task-manager/internal/store/types"
	"task-manager/pkg/config"
	"task-manager/pkg/logger"
)

func provideLogger(cfg *config.ServerConfig) *logger.Logger {
	return logger.NewLogger(logger.Options{
		Debug:    cfg.Log.Debug,
		File:     cfg.Log.File,
		Rotation: cfg.Log.Rotation,
	})
}

func provideStore(cfg *config.ServerConfig) (types.Store, error) {
	return factory.NewStore(&cfg.Storage)
}
