package streaming

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Camera names the externally owned viewpoint used for rendering.
type Camera string

const (
	CameraPrimary Camera = "primary"
	CameraDebug   Camera = "debug"
)

// Viewer moves a viewpoint forward along the travel axis and feeds each new
// position to its stream. It owns no terrain state.
type Viewer struct {
	stream   *ChunkStream
	position float64
	step     float64
	ticks    uint64
	camera   Camera
}

// NewViewer places a viewer at position. The stream must be initialized.
func NewViewer(stream *ChunkStream, position, step float64) (*Viewer, error) {
	if stream == nil {
		return nil, fmt.Errorf("chunk stream is required")
	}
	if stream.State() != StateStreaming {
		return nil, fmt.Errorf("chunk stream is %s, want %s", stream.State(), StateStreaming)
	}
	if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("step must be a non-negative finite number, got %v", step)
	}
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return nil, fmt.Errorf("position must be finite, got %v", position)
	}
	return &Viewer{
		stream:   stream,
		position: position,
		step:     step,
		camera:   CameraPrimary,
	}, nil
}

// Tick advances by the configured step.
func (v *Viewer) Tick() AdvanceResult {
	return v.TickBy(v.step)
}

// TickBy advances by delta. Travel is forward only.
func (v *Viewer) TickBy(delta float64) AdvanceResult {
	if delta < 0 || math.IsNaN(delta) {
		panic(fmt.Sprintf("streaming: viewer step %v must be non-negative", delta))
	}
	v.ticks++
	v.position += delta
	return v.stream.Advance(v.position)
}

// MoveTo jumps forward to position, e.g. for a client-reported pose.
// Positions behind the viewer are rejected.
func (v *Viewer) MoveTo(position float64) (AdvanceResult, error) {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return AdvanceResult{}, fmt.Errorf("position must be finite, got %v", position)
	}
	if position < v.position {
		return AdvanceResult{}, fmt.Errorf("position %.2f is behind the viewer at %.2f", position, v.position)
	}
	v.position = position
	return v.stream.Advance(position), nil
}

// Run ticks every interval until ctx is done. onTick may be nil.
func (v *Viewer) Run(ctx context.Context, interval time.Duration, onTick func(AdvanceResult)) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			result := v.Tick()
			if onTick != nil {
				onTick(result)
			}
		}
	}
}

// ToggleCamera flips between the primary and debug cameras.
func (v *Viewer) ToggleCamera() Camera {
	if v.camera == CameraPrimary {
		v.camera = CameraDebug
	} else {
		v.camera = CameraPrimary
	}
	return v.camera
}

// Camera returns the active camera.
func (v *Viewer) Camera() Camera {
	return v.camera
}

// Position returns the current travel-axis position.
func (v *Viewer) Position() float64 {
	return v.position
}

// Step returns the per-tick distance.
func (v *Viewer) Step() float64 {
	return v.step
}

// Ticks returns how many ticks have run.
func (v *Viewer) Ticks() uint64 {
	return v.ticks
}

// Stream returns the stream the viewer drives.
func (v *Viewer) Stream() *ChunkStream {
	return v.stream
}
