package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/infinitelandscape/server/internal/api"
	"github.com/infinitelandscape/server/internal/config"
)

// main starts the landscape streaming server.
// It loads configuration, wires the HTTP and websocket routes and serves
// until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	log.Printf("Terrain: chunk_size=%.0f num_chunks=%d segments=%dx%d noise=%s seed=%d",
		cfg.Terrain.ChunkSize, cfg.Terrain.NumChunks, cfg.Terrain.WidthSegments,
		cfg.Terrain.DepthSegments, cfg.Terrain.Noise, cfg.Terrain.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
