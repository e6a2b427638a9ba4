package main

import (
	"flag"
	"log"
	"os"

	"github.com/andreyxaxa/Ledger-Outbox/config"
	"github.com/andreyxaxa/Ledger-Outbox/internal/app"
	"github.com/joho/godotenv"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment, if present")
	flag.Parse()

	// Config
	if _, err := os.Stat(*envFile); err == nil {
		err = godotenv.Load(*envFile)
		if err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	// Run
	app.Run(cfg)
}
