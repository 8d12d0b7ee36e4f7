// Copyright 2025 Citadel Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-citadel/citadel/internal/engine/conf"
	"github.com/go-citadel/citadel/internal/engine/model"
	"github.com/go-citadel/citadel/internal/engine/repo"
	"github.com/go-citadel/citadel/internal/engine/router"
	"github.com/go-citadel/citadel/internal/engine/service"
	"github.com/go-citadel/citadel/internal/pkg/delegate"
	"github.com/go-citadel/citadel/internal/pkg/queue"
	"github.com/go-citadel/citadel/pkg/cache"
	"github.com/go-citadel/citadel/pkg/ctx"
	"github.com/go-citadel/citadel/pkg/database"
	"github.com/go-citadel/citadel/pkg/log"
	"github.com/go-citadel/citadel/pkg/safe"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	HttpApp  *fiber.App
	Queue    *queue.TransitionQueue
	Services *service.Services
	Ctx      *ctx.Context
	Logger   *zap.Logger
	AppConf  conf.AppConfig
}

// Bootstrap builds the application from a config file. The returned cleanup
// stops the transition queue.
func Bootstrap(configFile string) (*App, func(), error) {
	appConf := conf.NewConf(configFile)

	logger, err := log.NewLog(&appConf.Log)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := cache.NewRedis(appConf.Redis)
	if err != nil {
		return nil, nil, err
	}

	dbClient, err := database.NewDatabase(appConf.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := dbClient.AutoMigrate(
		&model.EncryptedRecord{},
		&model.ProviderConfig{},
		&model.SecretChangeLog{},
		&model.SecretUsageLog{},
		&model.SecretTransition{},
	); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	db := database.NewGormDB(dbClient)

	appCtx := ctx.NewContext(context.Background(), dbClient, redisClient, logger.Sugar())

	masterKey, err := appConf.Secret.DecodeMasterKey()
	if err != nil {
		return nil, nil, err
	}
	local, err := delegate.NewLocalDelegate(masterKey)
	if err != nil {
		return nil, nil, err
	}
	remote := delegate.NewRemoteDelegate(appConf.Delegate)
	dispatcher := delegate.NewDispatcher(local, remote)

	repos := repo.NewRepositories(db)

	transitionQueue, err := queue.NewTransitionQueue(&queue.Config{
		RedisClient:     redisClient,
		MaxRetry:        appConf.Queue.MaxRetry,
		ShutdownTimeout: appConf.Queue.ShutdownTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	services := service.NewServices(repos, local, dispatcher, transitionQueue)
	transitionQueue.RegisterHandler(services.Transition)

	rt := router.NewRouter(&appConf.Http, services)

	cleanup := func() {
		logger.Info("Shutting down transition queue...")
		transitionQueue.Stop()
	}

	app := &App{
		HttpApp:  rt.Router(),
		Queue:    transitionQueue,
		Services: services,
		Ctx:      appCtx,
		Logger:   logger,
		AppConf:  appConf,
	}
	return app, cleanup, nil
}

// Run starts the queue worker and HTTP listener, then blocks until an exit
// signal arrives and shuts everything down in order.
func Run(app *App, cleanup func()) {
	logger := app.Logger
	appConf := app.AppConf

	safe.Go(func() {
		if err := app.Queue.Start(); err != nil {
			logger.Sugar().Errorf("transition queue failed: %v", err)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		addr := fmt.Sprintf("%s:%d", appConf.Http.Host, appConf.Http.Port)
		logger.Sugar().Infow("HTTP listener started",
			"address", addr,
		)
		if err := app.HttpApp.Listen(addr); err != nil {
			logger.Sugar().Errorw("HTTP listener failed",
				"address", addr,
				"error", err,
			)
		}
	}()

	sig := <-quit
	logger.Sugar().Infof("Received signal: %v, shutting down gracefully...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Sugar().Errorf("HTTP server shutdown error: %v", err)
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	cleanup()

	logger.Info("Server shutdown complete")
}
