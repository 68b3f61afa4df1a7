package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"monarch"
	"monarch/internal/check"
	"monarch/internal/eventbus"
)

const recordTimeout = 5 * time.Second

// Service journals every envelope published on the bus while it runs.
type Service struct {
	path string
	bus  *eventbus.Bus
	log  *slog.Logger

	mu          sync.Mutex
	store       *Store
	unsubscribe func()
}

// NewService returns a hosted service writing to the journal at path.
func NewService(path string, bus *eventbus.Bus, log *slog.Logger) *Service {
	check.Assert(bus != nil, "journal.NewService: bus must not be nil")
	if log == nil {
		log = slog.Default()
	}
	return &Service{path: path, bus: bus, log: log}
}

func (s *Service) Name() string { return "activation-journal" }

func (s *Service) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		return nil
	}

	store, err := Open(s.path)
	if err != nil {
		return err
	}
	s.store = store
	s.unsubscribe = eventbus.Subscribe(s.bus, s.record)
	return nil
}

func (s *Service) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}

	s.unsubscribe()
	err := s.store.Close()
	s.store, s.unsubscribe = nil, nil
	return err
}

func (s *Service) record(env *monarch.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	rec, err := s.store.Record(ctx, env)
	if err != nil {
		s.log.Error("Failed to journal activation.", "err", err)
		return
	}
	s.log.Debug("Journaled activation.", "record", rec.ID)
}
