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

package router

import (
	"errors"
	"time"

	"github.com/go-citadel/citadel/internal/engine/core"
	"github.com/go-citadel/citadel/internal/engine/service"
	httpx "github.com/go-citadel/citadel/pkg/http"
	"github.com/go-citadel/citadel/pkg/version"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Http     *httpx.Http
	Services *service.Services
}

func NewRouter(httpConf *httpx.Http, services *service.Services) *Router {
	return &Router{
		Http:     httpConf,
		Services: services,
	}
}

func (rt *Router) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Citadel",
		ReadTimeout:  time.Duration(rt.Http.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(rt.Http.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(rt.Http.IdleTimeout) * time.Second,
	})

	app.Use(
		fiberrecover.New(),
		cors.New(),
	)

	if rt.Http.AccessLog {
		app.Use(logger.New())
	}

	if rt.Http.ExposeMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})

	api := app.Group(rt.Http.ContextPath)
	{
		rt.secretRouter(api)
		rt.providerConfigRouter(api)
		rt.transitionRouter(api)
	}

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).
			JSON(httpx.WithRepErr(c, fiber.StatusNotFound, "request path not found", c.Path()))
	})

	return app
}

// errCode maps service errors to response codes
func errCode(err error) int {
	switch {
	case errors.Is(err, core.ErrSecretNotFound):
		return httpx.SecretNotFound.Code
	case errors.Is(err, core.ErrSecretReferenced):
		return httpx.SecretReferenced.Code
	case errors.Is(err, core.ErrProviderUnreachable):
		return httpx.ProviderUnreachable.Code
	case errors.Is(err, core.ErrInvalidProviderConfig):
		return httpx.InvalidProviderConfig.Code
	case errors.Is(err, core.ErrTransitionInProgress):
		return httpx.TransitionInProgress.Code
	case errors.Is(err, core.ErrDuplicateDefaultProvider):
		return httpx.DuplicateDefaultProvider.Code
	default:
		return httpx.Failed.Code
	}
}
