package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/simmodem/internal/config"
	"github.com/danmuck/simmodem/internal/logging"
	"github.com/danmuck/simmodem/internal/protocol/session"
	"github.com/danmuck/simmodem/internal/relay"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "", "optional relayd config path")
	listen := flag.String("listen", "", "override relay.listen")
	flag.Parse()

	cfg, err := loadConfig(*path, *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
	logging.Apply(cfg.Log.Logging(logging.ProfileRuntime))
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := relay.New(session.DefaultConfig())
	if err := hub.ListenAndServe(ctx, cfg.Relay.Listen); err != nil {
		log.Error().Err(err).Msg("relayd exited")
		logging.Close()
		os.Exit(1)
	}
	log.Info().Msg("relayd stopped")
}

func loadConfig(path, listen string) (config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(listen); v != "" {
		cfg.Relay.Listen = v
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
