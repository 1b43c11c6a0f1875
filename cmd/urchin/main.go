package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"urchin/internal/config"
	"urchin/internal/logging"
	"urchin/internal/web"
)

func main() {
	var (
		configPath  string
		writeConfig bool
		simMode     bool
	)
	flag.StringVar(&configPath, "config", "/etc/urchin/config.yaml", "Path to YAML config")
	flag.BoolVar(&writeConfig, "write-config", false, "Write the default config to -config and exit")
	flag.BoolVar(&simMode, "sim", false, "Run on synthetic sensors instead of hardware")
	flag.Parse()

	if writeConfig {
		if err := config.Save(configPath, config.Default()); err != nil {
			log.Fatalf("write config failed: %v", err)
		}
		fmt.Printf("wrote %s\n", configPath)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt := newRuntime(ctx, cfg, simMode, logger)
	defer rt.Close()

	go func() {
		err := web.Serve(ctx, cfg.Web.Listen, rt.status, rt.controls, rt.visual, rt.metrics, logging.Component(logger, "web"))
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("web server stopped")
			cancel()
		}
	}()

	logger.Info().Bool("sim", simMode).Str("config", configPath).Msg("urchin running")
	<-ctx.Done()
	logger.Info().Msg("urchin stopping")
}
