package streaming

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/terrain"
)

const (
	// DefaultMaxSubscriptions caps concurrently live streams.
	DefaultMaxSubscriptions = 64
	// MaxStepTicks bounds a single autopilot request.
	MaxStepTicks = 1000
	// DefaultMaxJumpChunks bounds how far one client pose may move the viewer.
	// Every skipped chunk is still built to carry the seam forward.
	DefaultMaxJumpChunks = 64
)

// Factory builds a fresh, uninitialized stream for a subscription.
type Factory func() (*ChunkStream, error)

// Manager owns one ChunkStream and Viewer per subscription.
type Manager struct {
	mu               sync.Mutex
	factory          Factory
	profiler         *performance.Profiler
	maxSubscriptions int
	maxJumpChunks    int
	defaultStep      float64
	subscriptions    map[string]*Subscription
}

// Subscription is a viewer's private stream. mu serializes moves of its
// viewer; the manager lock only guards the subscription map.
type Subscription struct {
	ID        string
	ViewerID  string
	Request   SubscriptionRequest
	Stream    *ChunkStream
	Viewer    *Viewer
	CreatedAt time.Time

	mu        sync.Mutex
	updatedAt time.Time
}

// UpdatedAt returns when the subscription last moved.
func (s *Subscription) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// CameraPose is a client-reported viewer position.
type CameraPose struct {
	Position float64 `json:"position"`
}

// SubscriptionRequest is sent by clients to open a stream.
type SubscriptionRequest struct {
	Pose CameraPose `json:"pose"`
	// Step is the autopilot distance per tick; zero uses the server default.
	Step            float64 `json:"step,omitempty"`
	IncludeGeometry bool    `json:"include_geometry"`
}

// SubscriptionPlan is the initial window handed back to the client.
type SubscriptionPlan struct {
	SubscriptionID string
	Chunks         []*terrain.ChunkMesh
	ChunkIDs       []int64
}

// ChunkDelta describes how a subscription's window changed.
type ChunkDelta struct {
	SubscriptionID string
	Position       float64
	AddedChunks    []*terrain.ChunkMesh
	RemovedChunks  []int64
	CurrentChunks  []int64
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithProfiler records stream timings and counters.
func WithProfiler(p *performance.Profiler) ManagerOption {
	return func(m *Manager) { m.profiler = p }
}

// WithMaxSubscriptions caps live subscriptions.
func WithMaxSubscriptions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSubscriptions = n
		}
	}
}

// WithMaxJumpChunks bounds a single pose update, in chunks.
func WithMaxJumpChunks(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxJumpChunks = n
		}
	}
}

// WithDefaultStep sets the autopilot step used when a request omits one.
func WithDefaultStep(step float64) ManagerOption {
	return func(m *Manager) {
		if step > 0 {
			m.defaultStep = step
		}
	}
}

// NewManager builds a manager around factory.
func NewManager(factory Factory, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:          factory,
		maxSubscriptions: DefaultMaxSubscriptions,
		maxJumpChunks:    DefaultMaxJumpChunks,
		defaultStep:      1,
		subscriptions:    make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PlanSubscription validates the request, builds and initializes a stream,
// and moves the viewer to the requested position.
func (m *Manager) PlanSubscription(viewerID string, req SubscriptionRequest) (*SubscriptionPlan, error) {
	if viewerID == "" {
		return nil, fmt.Errorf("viewer id is required")
	}
	if err := validatePosition(req.Pose.Position); err != nil {
		return nil, err
	}
	if req.Step < 0 || math.IsNaN(req.Step) || math.IsInf(req.Step, 0) {
		return nil, fmt.Errorf("step must be a non-negative finite number")
	}
	step := req.Step
	if step == 0 {
		step = m.defaultStep
	}

	m.mu.Lock()
	full := len(m.subscriptions) >= m.maxSubscriptions
	m.mu.Unlock()
	if full {
		return nil, fmt.Errorf("subscription limit of %d reached", m.maxSubscriptions)
	}

	op := m.profiler.Start(performance.OpStreamSubscribe)
	stream, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to build chunk stream: %w", err)
	}
	stream.Initialize()
	m.profiler.Add(performance.CounterChunksCreated, int64(stream.NumChunks()))

	viewer, err := NewViewer(stream, 0, step)
	if err != nil {
		return nil, fmt.Errorf("failed to place viewer: %w", err)
	}
	if err := m.checkJump(viewer, req.Pose.Position); err != nil {
		return nil, err
	}
	result, err := viewer.MoveTo(req.Pose.Position)
	if err != nil {
		return nil, err
	}
	m.record(result)
	op.End()

	subscription := &Subscription{
		ID:        uuid.NewString(),
		ViewerID:  viewerID,
		Request:   req,
		Stream:    stream,
		Viewer:    viewer,
		CreatedAt: time.Now(),
		updatedAt: time.Now(),
	}

	m.mu.Lock()
	if len(m.subscriptions) >= m.maxSubscriptions {
		m.mu.Unlock()
		return nil, fmt.Errorf("subscription limit of %d reached", m.maxSubscriptions)
	}
	m.subscriptions[subscription.ID] = subscription
	m.mu.Unlock()

	log.Printf("[Stream] subscription %s opened: viewer=%s position=%.2f step=%.2f window=%v",
		subscription.ID, viewerID, viewer.Position(), step, stream.Indices())

	return &SubscriptionPlan{
		SubscriptionID: subscription.ID,
		Chunks:         stream.Window(),
		ChunkIDs:       stream.Indices(),
	}, nil
}

// UpdatePose moves the viewer to pose and returns the window delta.
func (m *Manager) UpdatePose(viewerID, subscriptionID string, pose CameraPose) (*ChunkDelta, error) {
	if err := validatePosition(pose.Position); err != nil {
		return nil, err
	}
	return m.mutate(viewerID, subscriptionID, func(v *Viewer) error {
		if err := m.checkJump(v, pose.Position); err != nil {
			return err
		}
		result, err := v.MoveTo(pose.Position)
		if err != nil {
			return err
		}
		m.record(result)
		return nil
	})
}

// Step runs ticks autopilot ticks and returns the combined delta.
func (m *Manager) Step(viewerID, subscriptionID string, ticks int) (*ChunkDelta, error) {
	if ticks <= 0 || ticks > MaxStepTicks {
		return nil, fmt.Errorf("ticks must be between 1 and %d", MaxStepTicks)
	}
	return m.mutate(viewerID, subscriptionID, func(v *Viewer) error {
		if err := m.checkJump(v, v.Position()+float64(ticks)*v.Step()); err != nil {
			return err
		}
		for i := 0; i < ticks; i++ {
			m.record(v.Tick())
		}
		return nil
	})
}

// ToggleCamera switches the subscription's active camera. The stream is untouched.
func (m *Manager) ToggleCamera(viewerID, subscriptionID string) (Camera, error) {
	subscription, err := m.lookup(viewerID, subscriptionID)
	if err != nil {
		return "", err
	}

	subscription.mu.Lock()
	defer subscription.mu.Unlock()
	subscription.updatedAt = time.Now()
	return subscription.Viewer.ToggleCamera(), nil
}

// Unsubscribe releases a subscription and its chunks. It does not wait for
// a move in progress on the same subscription.
func (m *Manager) Unsubscribe(viewerID, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookupLocked(viewerID, subscriptionID); err != nil {
		return err
	}
	delete(m.subscriptions, subscriptionID)
	log.Printf("[Stream] subscription %s closed", subscriptionID)
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (m *Manager) GetSubscription(subscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscription, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	return subscription, nil
}

// Count returns the number of live subscriptions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// mutate runs fn against the subscription's viewer under the subscription
// lock and diffs the window before and after. Other subscriptions are not
// blocked while chunks are built.
func (m *Manager) mutate(viewerID, subscriptionID string, fn func(*Viewer) error) (*ChunkDelta, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required")
	}

	subscription, err := m.lookup(viewerID, subscriptionID)
	if err != nil {
		return nil, err
	}

	subscription.mu.Lock()
	defer subscription.mu.Unlock()

	stream := subscription.Stream
	previous := stream.Indices()

	op := m.profiler.Start(performance.OpStreamAdvance)
	err = fn(subscription.Viewer)
	op.End()
	if err != nil {
		return nil, err
	}

	current := stream.Indices()
	added, removed := diffChunkSets(previous, current)
	subscription.updatedAt = time.Now()

	addedMeshes := make([]*terrain.ChunkMesh, 0, len(added))
	if len(added) > 0 {
		want := make(map[int64]struct{}, len(added))
		for _, id := range added {
			want[id] = struct{}{}
		}
		for _, mesh := range stream.Window() {
			if _, ok := want[mesh.Index()]; ok {
				addedMeshes = append(addedMeshes, mesh)
			}
		}
	}

	return &ChunkDelta{
		SubscriptionID: subscriptionID,
		Position:       subscription.Viewer.Position(),
		AddedChunks:    addedMeshes,
		RemovedChunks:  removed,
		CurrentChunks:  current,
	}, nil
}

func (m *Manager) lookup(viewerID, subscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(viewerID, subscriptionID)
}

func (m *Manager) lookupLocked(viewerID, subscriptionID string) (*Subscription, error) {
	subscription, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	if subscription.ViewerID != viewerID {
		return nil, fmt.Errorf("subscription %s does not belong to the current viewer", subscriptionID)
	}
	return subscription, nil
}

func (m *Manager) checkJump(v *Viewer, target float64) error {
	limit := float64(m.maxJumpChunks) * v.Stream().ChunkSize()
	if math.Abs(target-v.Position()) > limit {
		return fmt.Errorf("move of %.0f exceeds the %d chunk limit per update", target-v.Position(), m.maxJumpChunks)
	}
	return nil
}

func (m *Manager) record(result AdvanceResult) {
	m.profiler.Add(performance.CounterChunksCreated, int64(result.Generated))
	m.profiler.Add(performance.CounterChunksEvicted, int64(len(result.Evicted)))
}

func validatePosition(position float64) error {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return fmt.Errorf("position must be finite")
	}
	if position < 0 {
		return fmt.Errorf("position must be non-negative")
	}
	return nil
}

// diffChunkSets returns ids present only in next (added) and only in previous (removed).
func diffChunkSets(previous, next []int64) (added []int64, removed []int64) {
	prevSet := make(map[int64]struct{}, len(previous))
	nextSet := make(map[int64]struct{}, len(next))

	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, exists := prevSet[id]; !exists {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, exists := nextSet[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}
