/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/config"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/queue"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/casescope/worker.json", "Path to worker config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrapLog, err := logger.New(&logger.Config{Level: "info"})
	if err != nil {
		return err
	}

	var cfg worker.Config

	if err := config.NewConfig(bootstrapLog).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return err
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = &logger.Config{Level: "info"}
	}

	mainLog, err := logger.New(logCfg)
	if err != nil {
		return err
	}

	store, err := db.New(ctx, &cfg.Database, mainLog)
	if err != nil {
		return err
	}
	defer store.Close()

	search, err := index.New(&cfg.Search, mainLog)
	if err != nil {
		return err
	}

	q, err := queue.New(ctx, &cfg.Queue, mainLog)
	if err != nil {
		return err
	}
	defer q.Close()

	metrics := worker.NewMetrics(prometheus.DefaultRegisterer)

	svc, err := worker.New(ctx, store, search, q, &cfg, metrics, mainLog)
	if err != nil {
		return err
	}

	consumer, err := q.NewConsumer(ctx, svc)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		svc.RunSweeper(ctx)
	}()

	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				mainLog.Error().Err(err).Msg("Metrics server failed")
			}
		}()

		mainLog.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("Metrics endpoint listening")
	}

	mainLog.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("Evidence worker started")

	<-ctx.Done()
	mainLog.Info().Msg("Shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = metricsServer.Shutdown(shutdownCtx)
	}

	wg.Wait()

	return nil
}
