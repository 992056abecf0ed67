package main

import (
	"os"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/logging"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	root := newRootCmd(cfg, log, repository.Open)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
