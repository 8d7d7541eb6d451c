package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"task-manager/pkg/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	version := flag.Bool("version", false, "show version")
	flag.Parse()

	if *version {
		fmt.Printf("task-manager version %s (built at %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workspaceRoot, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get working directory: %v", err)
	}

	cfg, err := config.LoadServerConfig(*configPath, workspaceRoot)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
