// Command pricer 提供二叉树 / Black-Scholes / 蒙特卡洛期权定价的 HTTP 服务，
// 也可以用 -scenario 在命令行上输出配置中的场景定价表。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/wyfcoding/pricer/app"
	"github.com/wyfcoding/pricer/cache"
	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
	"github.com/wyfcoding/pricer/pricing"
	"github.com/wyfcoding/pricer/scheduler"
	"github.com/wyfcoding/pricer/server"
	"github.com/wyfcoding/pricer/tracing"
)

var (
	configPath = flag.String("config", "configs/pricer.toml", "path to the TOML config file")
	scenario   = flag.Bool("scenario", false, "price the configured scenario, print the table and exit")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		slog.Error("pricer exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		return err
	}

	logger := logging.InitLogger(logging.Config{
		Service:    cfg.Server.Name,
		Module:     "main",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Stdout:     cfg.Log.Stdout,
	})

	if *scenario {
		svc := pricing.NewService(cfg.Pricing, cfg.MonteCarlo, nil, logger)
		rows, err := svc.RunScenario(ctx, cfg.Scenario)
		if err != nil {
			return err
		}
		return pricing.WriteScenario(os.Stdout, rows, cfg.Pricing.Precision)
	}

	config.PrintWithMask(&cfg)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Server.Name)
		m.RegisterBuildInfo(cfg.Server.Name, cfg.Version)
	}

	var cleanups []app.Option
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(ctx, cfg.Tracing, cfg.Server.Name, cfg.Version)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, app.WithCleanup(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("tracer shutdown failed", "error", err)
			}
		}))
	}

	var svcOpts []pricing.Option
	if cfg.Cache.Enabled {
		quoteCache, err := cache.NewBigCache(cfg.Cache.TTL, cfg.Cache.MaxMB)
		if err != nil {
			return err
		}
		svcOpts = append(svcOpts, pricing.WithQuoteCache(quoteCache))
		cleanups = append(cleanups, app.WithCleanup(func() { _ = quoteCache.Close() }))
	}

	svc := pricing.NewService(cfg.Pricing, cfg.MonteCarlo, m, logger, svcOpts...)
	config.RegisterReloadHook(svc.OnConfigReload)
	if *configPath != "" {
		config.Watch(&cfg)
	}

	httpCfg := cfg.Server.HTTP
	addr := net.JoinHostPort(httpCfg.Addr, strconv.Itoa(httpCfg.Port))
	srv := server.NewGinServer(newRouter(&cfg, svc, m, logger), addr, logger.Logger,
		server.WithTimeouts(httpCfg.ReadTimeout, httpCfg.ReadHeaderTimeout, httpCfg.WriteTimeout, httpCfg.IdleTimeout),
	)

	opts := []app.Option{
		app.WithVersion(cfg.Version),
		app.WithServer(srv),
	}
	opts = append(opts, cleanups...)
	if m != nil && cfg.Metrics.Addr != "" {
		opts = append(opts, app.WithHook(metricsHook(m, cfg.Metrics)))
	}
	if cfg.Audit.Enabled {
		hook, err := auditHook(svc, &cfg, logger, m)
		if err != nil {
			return err
		}
		opts = append(opts, app.WithHook(hook))
	}

	return app.New(cfg.Server.Name, logger.Logger, opts...).Run(ctx)
}

// metricsHook 在独立端口上暴露指标。
func metricsHook(m *metrics.Metrics, cfg config.MetricsConfig) app.Hook {
	var stop func()
	return app.Hook{
		Name: "metrics",
		OnStart: func(context.Context) error {
			stop = m.ExposeHTTP(cfg.Addr, cfg.Path)
			slog.Info("metrics exposed", "addr", cfg.Addr, "path", cfg.Path)
			return nil
		},
		OnStop: func(context.Context) error {
			if stop != nil {
				stop()
			}
			return nil
		},
	}
}

// auditHook 按 cron 表达式定时运行交叉校验。
func auditHook(svc *pricing.Service, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (app.Hook, error) {
	sched := scheduler.NewScheduler(logger, m)
	err := sched.AddJob(scheduler.JobConfig{
		Name:    pricing.AuditJobName,
		Spec:    cfg.Audit.Schedule,
		Timeout: cfg.Audit.Timeout,
	}, svc.AuditJob(cfg.Scenario, cfg.Audit))
	if err != nil {
		return app.Hook{}, err
	}
	return app.Hook{Name: "scheduler", OnStart: sched.Start, OnStop: sched.Stop}, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [-scenario]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
