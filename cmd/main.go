// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/fsmkit/pkg/api"
	"github.com/united-manufacturing-hub/fsmkit/pkg/catalog"
	"github.com/united-manufacturing-hub/fsmkit/pkg/config"
	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
	"github.com/united-manufacturing-hub/fsmkit/pkg/control"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
	"github.com/united-manufacturing-hub/fsmkit/pkg/version"
)

func main() {
	// Initialize the global logger first thing
	logger.Initialize()

	log := logger.For(logger.ComponentCore)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = constants.DefaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("Failed to load config from %s: %v", configPath, err)
		os.Exit(1)
	}

	appVersion := cfg.Agent.Version
	if appVersion == "" {
		appVersion = version.GetAppVersion()
	}

	sentry.InitSentry(appVersion, cfg.Agent.SentryDSN, true)

	log.Infof("Starting fsmkit %s with modules %v", appVersion, cfg.Runtime.Modules)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Agent.MetricsPort))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer cancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %v", err)
		}
	}()

	registry, err := catalog.NewRegistry(cfg)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to build module registry: %v", err)
		os.Exit(1)
	}

	controlLoop := control.NewControlLoop(registry, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controlLoop.Execute(gctx)
	})

	if cfg.Agent.APIPort > 0 {
		server := api.NewServer(controlLoop.GetSnapshotManager())

		g.Go(func() error {
			return server.Run(gctx, fmt.Sprintf(":%d", cfg.Agent.APIPort))
		})
	} else {
		log.Info("Inspection API disabled")
	}

	start := time.Now()

	if err := g.Wait(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "fsmkit stopped with error after %v: %v", time.Since(start), err)
		_ = logger.Sync()
		os.Exit(1)
	}

	log.Infof("fsmkit completed after %v", time.Since(start))
	_ = logger.Sync()
}
