package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kinovod/kino/internal"
	"github.com/kinovod/kino/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. The user's Kino configuration is
// loaded from the path provided (or purely from the environment when no
// path is given), and the server is run until interrupted.
func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional, env vars apply either way)")
	logLevel := flag.Int("log-level", 2, "minimum log level to print (0 is verbose, 9 prints only fatal messages)")
	flag.Parse()

	logger.SetMinLoggingLevel(*logLevel)

	config := internal.KinoConfig{}
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath); err != nil {
			log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Kino stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Kino stopped\n")
}
