package main

import (
	"flag"

	"github.com/danmuck/simmodem/internal/config"
	"github.com/danmuck/simmodem/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()

	kind := flag.String("kind", "modem", "config kind: modem|relay")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if _, err := config.Load(path); err != nil {
			log.Fatal().Err(err).Msg("configgen validate failed")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen write failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
}

func defaultPath(kind string) string {
	switch kind {
	case "modem":
		return "cmd/modemd/config.toml"
	case "relay":
		return "cmd/relayd/config.toml"
	default:
		log.Fatal().Str("kind", kind).Msg("configgen unknown kind")
		return ""
	}
}
