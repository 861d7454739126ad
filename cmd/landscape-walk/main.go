package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/infinitelandscape/server/internal/compression"
	"github.com/infinitelandscape/server/internal/config"
	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/procedural"
	"github.com/infinitelandscape/server/internal/streaming"
)

// landscape-walk drives a viewer through the landscape without a renderer and
// logs every window change.
func main() {
	var (
		ticks    = flag.Int("ticks", 600, "number of ticks to run (0 runs until interrupted)")
		step     = flag.Float64("step", 0, "distance per tick (defaults to VIEWER_SPEED)")
		start    = flag.Float64("start", 0, "starting position on the travel axis")
		interval = flag.Duration("interval", 0, "wall-clock time between ticks (defaults to VIEWER_TICK_RATE when -ticks is 0)")
		encode   = flag.Bool("encode", false, "encode each new chunk with the configured geometry format and report sizes")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *step == 0 {
		*step = cfg.Viewer.Speed
	}
	if *ticks == 0 && *interval == 0 {
		*interval = cfg.Viewer.TickRate
	}

	builder, err := cfg.Terrain.NewBuilder()
	if err != nil {
		log.Fatalf("Failed to create terrain builder: %v", err)
	}
	stream, err := streaming.New(cfg.StreamConfig(), builder)
	if err != nil {
		log.Fatalf("Failed to create chunk stream: %v", err)
	}
	stream.Initialize()

	viewer, err := streaming.NewViewer(stream, 0, *step)
	if err != nil {
		log.Fatalf("Failed to create viewer: %v", err)
	}
	// Every skipped chunk is built to carry the seam, so bound the jumps.
	maxJump := float64(cfg.Streaming.MaxJumpChunks) * cfg.Terrain.ChunkSize
	if *start > maxJump || *step > maxJump {
		log.Fatalf("start %.0f and step %.0f must not exceed %.0f (STREAM_MAX_JUMP_CHUNKS=%d chunks)",
			*start, *step, maxJump, cfg.Streaming.MaxJumpChunks)
	}
	if _, err := viewer.MoveTo(*start); err != nil {
		log.Fatalf("Failed to move viewer: %v", err)
	}
	log.Printf("[Viewer] start=%.2f step=%.2f window=%v", viewer.Position(), viewer.Step(), stream.Indices())

	profiler := performance.NewProfiler(true)
	var codec *compression.Codec
	if *encode && cfg.Streaming.GeometryFormat != compression.FormatJSON {
		codec, err = compression.NewCodec(cfg.Streaming.GeometryFormat, cfg.Streaming.CompressionLevel)
		if err != nil {
			log.Fatalf("Failed to create codec: %v", err)
		}
	}
	settings := cfg.Terrain.Settings()

	onTick := func(result streaming.AdvanceResult) {
		profiler.Add(performance.CounterChunksCreated, int64(result.Generated))
		profiler.Add(performance.CounterChunksEvicted, int64(len(result.Evicted)))
		if !result.Changed() {
			return
		}
		log.Printf("[Viewer] tick=%d position=%.2f evicted=%d window=%v",
			viewer.Ticks(), viewer.Position(), len(result.Evicted), stream.Indices())

		if codec == nil {
			return
		}
		for _, mesh := range result.Created {
			op := profiler.Start(performance.OpGeometryEncode)
			payload, err := codec.CompressAndFormat(procedural.BuildGeometry(mesh, settings))
			op.End()
			if err != nil {
				log.Printf("[Viewer] failed to encode chunk %d: %v", mesh.Index(), err)
				continue
			}
			log.Printf("[Viewer] chunk %d: %d bytes %s (%d raw)", mesh.Index(), payload.Size, payload.Format, payload.UncompressedSize)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *interval > 0 {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		limited := func(result streaming.AdvanceResult) {
			onTick(result)
			if *ticks > 0 && viewer.Ticks() >= uint64(*ticks) {
				cancel()
			}
		}
		if err := viewer.Run(ctx, *interval, limited); err != nil && ctx.Err() == nil {
			log.Fatalf("Viewer stopped: %v", err)
		}
	} else {
		for i := 0; i < *ticks && ctx.Err() == nil; i++ {
			op := profiler.Start(performance.OpStreamAdvance)
			result := viewer.Tick()
			op.End()
			onTick(result)
		}
	}

	fmt.Fprintf(os.Stdout, "walked %d ticks to %.2f, window %v\n", viewer.Ticks(), viewer.Position(), stream.Indices())
	profiler.LogReport()
}
