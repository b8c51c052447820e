package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/enginebridge/playbilling/internal/app/bridge"
)

func main() {
	configPath := flag.String("config", os.Getenv("BRIDGE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bridge.Run(ctx, *configPath); err != nil {
		log.Fatalf("billing bridge exited: %v", err)
	}
}
