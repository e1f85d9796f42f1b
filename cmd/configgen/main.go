package main

import (
	"flag"

	"github.com/danmuck/ohuakv/internal/config"
	"github.com/danmuck/ohuakv/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	kind := flag.String("kind", "client", "config kind: client|mock")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime("configgen")

	if *validate {
		if err := config.Validate(*kind, *input); err != nil {
			log.Fatal().Err(err).Str("kind", *kind).Str("path", *input).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", *input).Msg("config validated")
		return
	}

	target, err := config.WriteTemplate(*output, *kind, *force)
	if err != nil {
		log.Fatal().Err(err).Str("kind", *kind).Msg("write config template")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("config template written")
}
