package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/utkarsh5026/heatload/config"
	"github.com/utkarsh5026/heatload/logging"
	"github.com/utkarsh5026/heatload/server"
	"github.com/utkarsh5026/heatload/session"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", ":8080", "listen address")
	origins := fs.String("origins", "", "comma separated CORS origins")
	controlRate := fs.Float64("control-rate", 10, "session control requests per second (0 disables the limit)")
	affinity := fs.Bool("affinity", false, "pin compute units to cores")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base := common.logger()
	ring := logging.NewRing(base.Handler(), logging.DefaultRingSize)
	logger := slog.New(ring)

	presets, tuning, err := common.load()
	if err != nil {
		return err
	}
	catalog := config.NewCatalog(presets)

	ctrl, err := session.New(
		session.WithTuning(tuning),
		session.WithLogger(logger),
		session.WithAffinity(*affinity),
	)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if common.file != "" {
		go config.WatchRetry(ctx, common.file, logger, func(f config.File, err error) {
			if err != nil {
				return
			}
			catalog.Replace(config.Merge(config.BuiltinPresets(), f.Presets))
		})
	}

	opts := []server.Option{
		server.WithPresets(catalog),
		server.WithLogs(ring),
		server.WithLogger(logger),
		server.WithStreamInterval(tuning.AggregateInterval),
		server.WithControlRate(*controlRate, max(1, int(*controlRate))),
	}
	if *origins != "" {
		opts = append(opts, server.WithAllowedOrigins(strings.Split(*origins, ",")...))
	}
	srv := server.New(ctrl, opts...)
	defer srv.Close()

	return srv.Run(ctx, *addr)
}
