/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"time"

	syscall "golang.org/x/sys/unix"

	log "github.com/sirupsen/logrus"

	"github.com/stratumone/gpsntpd/clock"
	"github.com/stratumone/gpsntpd/config"
	"github.com/stratumone/gpsntpd/gpsreader"
	"github.com/stratumone/gpsntpd/ntpserver"
	"github.com/stratumone/gpsntpd/security"
	"github.com/stratumone/gpsntpd/stats"
)

const pprofHTTP = "localhost:6060"

const prometheusScrapeInterval = 5 * time.Second

func main() {
	var (
		configPath string
		debugger   bool
		workers    int
	)

	flag.StringVar(&configPath, "config", "/etc/gpsntpd/gpsntpd.toml", "Path to TOML configuration file")
	flag.BoolVar(&debugger, "pprof", false, "Enable pprof")
	flag.IntVar(&workers, "workers", runtime.NumCPU()*10, "How many worker goroutines to run")
	flag.Parse()

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Warnf("Could not load config from %s, using defaults: %v", configPath, err)
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Default configuration is invalid: %v", err)
		}
	}

	switch cfg.Logging.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", cfg.Logging.Level)
	}

	if debugger {
		log.Warningf("Starting profiler on %s", pprofHTTP)
		go func() {
			log.Println(http.ListenAndServe(pprofHTTP, nil))
		}()
	}

	mgr := stats.NewManager()

	var clockSource clock.Source
	var reader *gpsreader.Reader
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Clock.Source == "gps" && cfg.Clock.GPS != nil && cfg.Clock.GPS.Enabled {
		syncTimeout := time.Duration(cfg.Clock.GPS.SyncTimeout) * time.Second
		gpsClock := clock.NewGpsDisciplinedClock(syncTimeout)
		clockSource = gpsClock

		reader = gpsreader.NewReader(gpsreader.Config{
			SerialPort: cfg.Clock.GPS.SerialPort,
			BaudRate:   cfg.Clock.GPS.BaudRate,
			PPSEnabled: cfg.Clock.GPS.PPSEnabled,
		}, gpsClock, mgr)
		go reader.Run(ctx)
	} else {
		// The plain system-clock source has no external reference of its
		// own, so it always advertises stratum 16 regardless of the
		// operator-configured server.stratum (which config.Validate checks
		// is in the 1-15 range whatever the clock source).
		clockSource = clock.NewSystemClock(16, "LOCL")
	}

	var rateLimiter *security.RateLimiter
	if cfg.Security.EnableRateLimiting {
		rateLimiter = security.NewRateLimiter(cfg.Security.MaxRequestsPerSec)
	}
	ipFilter := security.NewIPFilter(cfg.Security.IPWhitelist, cfg.Security.IPBlacklist)

	srv := ntpserver.NewServer(cfg.Server.BindAddress, workers, clockSource, rateLimiter, ipFilter, mgr)
	srv.LogRequests = cfg.Logging.LogRequests

	httpExporter := stats.NewHTTPExporter(mgr)
	go func() {
		if err := httpExporter.Start(cfg.WebServer.Port); err != nil {
			log.Errorf("stats http server exited: %v", err)
		}
	}()

	promExporter := stats.NewPrometheusExporter(mgr, cfg.WebServer.Port+1, prometheusScrapeInterval)
	go func() {
		if err := promExporter.Start(); err != nil {
			log.Errorf("prometheus exporter exited: %v", err)
		}
	}()

	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	select {
	case <-sigStop:
		log.Warning("Graceful shutdown")
		cancel()
	case err := <-serveErr:
		if err != nil {
			log.Errorf("ntpserver exited: %v", err)
		}
		cancel()
	}
}
