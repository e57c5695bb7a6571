package room

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/store"
)

// Registry owns the room-code → live-room map. Rooms are materialised
// from the store on first demand and removed when they dispose. The
// registry is handed to its consumers as a value; there is no package
// global.
type Registry struct {
	gw      store.Gateway
	verify  TokenVerifier
	timings Timings
	log     zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewRegistry creates an empty registry. Rooms spawned by Acquire run
// until they dispose or Shutdown is called.
func NewRegistry(gw store.Gateway, verify TokenVerifier, timings Timings, log zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		gw:        gw,
		verify:    verify,
		timings:   timings,
		log:       log.With().Str("component", "registry").Logger(),
		rooms:     make(map[string]*Room),
		runCtx:    ctx,
		runCancel: cancel,
	}
}

// Acquire returns the live room for roomCode, loading it from the store
// when absent. The registry lock is never held across the store call;
// concurrent loaders race and the loser discards its copy.
func (g *Registry) Acquire(ctx context.Context, roomCode string) (*Room, error) {
	g.mu.Lock()
	if r, ok := g.rooms[roomCode]; ok {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, g.timings.StoreTimeout)
	snap, err := g.gw.LoadSession(loadCtx, roomCode)
	cancel()
	if err != nil {
		return nil, err
	}
	if snap.Session.Status == model.SessionFinished {
		return nil, ErrRoomClosed
	}

	candidate := New(snap, g.gw, g.verify, g.timings, g.log, g.remove)

	g.mu.Lock()
	if r, ok := g.rooms[roomCode]; ok {
		// Another loader won the race; its room is the live one.
		g.mu.Unlock()
		return r, nil
	}
	g.rooms[roomCode] = candidate
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		candidate.Run(g.runCtx)
	}()
	return candidate, nil
}

// remove is the room's onDispose callback.
func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	if cur, ok := g.rooms[r.Code()]; ok && cur == r {
		delete(g.rooms, r.Code())
	}
	g.mu.Unlock()
	g.log.Info().Str("room_code", r.Code()).Msg("Room disposed")
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown cancels every room's run context and waits for their actors
// to exit.
func (g *Registry) Shutdown(ctx context.Context) error {
	g.runCancel()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
