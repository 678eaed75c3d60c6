package main

import (
	"flag"
	"log"

	"github.com/Antho-TB/veille/internal/app"
)

func main() {
	configPath := flag.String("config", "", "Path to config.json or config.yaml (default: $VEILLE_CONFIG or ./config.json)")
	flag.Parse()
	if err := app.Run(*configPath); err != nil {
		log.Fatalf("veille-review: %v", err)
	}
}
