// Simulator driving telemetry ticks and the per-tick broadcast
package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vitalstream/internal/broadcast"
	"vitalstream/internal/config"
	"vitalstream/internal/logging"
	"vitalstream/internal/metrics"
	"vitalstream/internal/state"
	"vitalstream/internal/telemetry"
)

// ReadingWriter persists sensor samples.
type ReadingWriter interface {
	WriteReadings(ctx context.Context, rows []telemetry.ReadingRow) error
}

// SummaryWriter persists subject summaries.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, row telemetry.SummaryRow) error
}

// Writer is implemented by every persistence backend.
type Writer interface {
	ReadingWriter
	SummaryWriter
}

// Broadcaster delivers one serialized frame to every observer.
type Broadcaster interface {
	Broadcast(ctx context.Context, frame []byte) broadcast.Result
}

// Simulator is the only writer of the state store. Each tick it advances
// every sensor, then snapshots the store once and broadcasts the snapshot.
type Simulator struct {
	store        *state.Store
	gen          *telemetry.Generator
	hub          Broadcaster
	writer       ReadingWriter
	metrics      *metrics.Metrics
	tickInterval time.Duration
	persistEvery int
	now          func() time.Time

	mu    sync.Mutex
	ticks uint64
}

// NewSimulator wires a simulator. writer and m may be nil.
func NewSimulator(cfg *config.SimulationConfig, store *state.Store, hub Broadcaster, writer ReadingWriter, m *metrics.Metrics) *Simulator {
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	persistEvery := cfg.PersistEvery
	if persistEvery < 1 {
		persistEvery = config.DefaultPersistEvery
	}
	return &Simulator{
		store:        store,
		gen:          telemetry.NewGenerator(seed),
		hub:          hub,
		writer:       writer,
		metrics:      m,
		tickInterval: cfg.TickInterval,
		persistEvery: persistEvery,
		now:          time.Now,
	}
}

// Run starts the simulation loop and stops when the context is done.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "tick_interval", s.tickInterval, "persist_every", s.persistEvery)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Info("stopping simulator", "ticks", s.Ticks())
			return
		}
	}
}

// Ticks returns the number of completed ticks.
func (s *Simulator) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// tick mutates the store, broadcasts the resulting snapshot and queues
// readings for persistence every persistEvery ticks.
func (s *Simulator) tick(ctx context.Context) broadcast.Result {
	log := logging.FromContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.now()
	s.ticks++
	persist := s.writer != nil && s.ticks%uint64(s.persistEvery) == 0

	var rows []telemetry.ReadingRow
	s.store.Mutate(now, func(subjects []*telemetry.Subject) {
		for _, subj := range subjects {
			for i := range subj.Sensors {
				sensor := &subj.Sensors[i]
				s.gen.Step(sensor, now)
				if persist {
					rows = append(rows, telemetry.NewReadingRow(subj.ID, sensor, now))
				}
			}
		}
	})

	snap := s.store.Snapshot()
	frame, err := json.Marshal(snap.Subjects)
	if err != nil {
		log.Error("encode snapshot failed", "tick", snap.Tick, "err", err)
		return broadcast.Result{}
	}

	var res broadcast.Result
	if s.hub != nil {
		res = s.hub.Broadcast(ctx, frame)
		if len(res.Failed) > 0 {
			log.Debug("broadcast had failures", "tick", snap.Tick, "delivered", res.Delivered, "failed", len(res.Failed))
		}
	}

	if len(rows) > 0 {
		if err := s.writer.WriteReadings(ctx, rows); err != nil {
			log.Error("reading write failed", "rows", len(rows), "err", err)
		}
	}

	s.metrics.ObserveTick(time.Since(start).Seconds(), len(frame))
	return res
}
