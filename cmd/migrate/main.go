package main

import (
	"flag"
	"log"
	"os"

	"github.com/andreyxaxa/Ledger-Outbox/migrations"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/postgres"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	URL string `env:"PG_URL,required"`
}

func main() {
	down := flag.Int("down", 0, "roll back N migrations instead of applying pending ones")
	flag.Parse()

	if _, err := os.Stat(".env"); err == nil {
		err = godotenv.Load()
		if err != nil {
			log.Fatalf("config error: %s", err)
		}
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Config error: %s", err)
	}

	if err := run(cfg.URL, *down); err != nil {
		log.Fatalf("Migrate: %s", err)
	}
}

func run(url string, down int) error {
	mg, err := postgres.NewMigrator(migrations.FS, url)
	if err != nil {
		return err
	}
	defer mg.Close()

	if down > 0 {
		err = mg.Down(down)
	} else {
		err = mg.Up()
	}
	if err != nil {
		return err
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}

	log.Printf("Migrate: schema version %d, dirty %t", version, dirty)

	return nil
}
