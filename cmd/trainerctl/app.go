package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/deployment"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/logging"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

// app holds what the offline commands share. Unlike the server it loads
// no models and runs no workers.
type app struct {
	cfg    *config.TrainerConfig
	db     *gorm.DB
	store  store.Store
	media  media.Root
	logger *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(db.Config{})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		db:     database,
		store:  storegorm.New(database),
		media:  media.Root(cfg.MediaRoot),
		logger: logger,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) datasets() *dataset.Service {
	return dataset.NewService(a.store, a.media, dataset.Limits{
		MaxRows:     a.cfg.MaxDatasetSize,
		UniqueNames: a.cfg.UniqueDocNames(),
	}, a.logger.Named("dataset"))
}

func (a *app) exports() *export.Service {
	return export.NewService(a.store, a.media, a.cfg.LargeCUIListThreshold, a.logger.Named("export"))
}

func (a *app) deployments() *deployment.Service {
	return deployment.NewService(a.store, a.media, a.exports(), a.logger.Named("deployment"))
}
