package scanner

import (
	"context"
	"errors"
	"log"
	"time"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/parse"
	"presence-tracker-backend/internal/presence"
)

// ErrNoSimulator is returned by Inject when the service is not polling a
// SimulatedReader.
var ErrNoSimulator = errors.New("scanner is not in simulate mode")

// Recorder is the part of the presence engine the scanner drives.
type Recorder interface {
	RecordScan(ctx context.Context, scan presence.Scan) (presence.Result, error)
	Mode() presence.Mode
}

// Service polls a tag reader and forwards every read to the presence engine.
type Service struct {
	cfg    *config.ScannerConfig
	reader Reader
	engine Recorder
}

// NewService creates a scanner service. reader may be nil when no hardware
// is attached; Simulate still works.
func NewService(cfg *config.ScannerConfig, reader Reader, engine Recorder) *Service {
	return &Service{
		cfg:    cfg,
		reader: reader,
		engine: engine,
	}
}

// Run polls the reader until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled || s.reader == nil {
		log.Println("Scanner running in TEST MODE (no reader); use /api/simulate to record scans.")
		return
	}
	log.Printf("Starting scanner service (interval %s)...", s.cfg.Interval)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scanner service shutting down.")
			return
		case <-timer.C:
			timer.Reset(s.PollOnce(ctx))
		}
	}
}

// PollOnce performs a single read and returns how long to wait before the next one.
func (s *Service) PollOnce(ctx context.Context) time.Duration {
	raw, ok, err := s.reader.ReadIdentifier(ctx)
	if err != nil {
		log.Printf("RFID read error: %v", err)
		return s.cfg.ErrorBackoff
	}
	if !ok {
		return s.cfg.Interval
	}

	tag := parse.NormalizeTag(raw, s.cfg.HexUIDs)
	if tag == "" {
		return s.cfg.Interval
	}
	if _, err := s.record(ctx, tag, model.SourceRFID); err != nil {
		log.Printf("Error recording scan of %s: %v", tag, err)
	}
	return s.cfg.Interval
}

// Simulate records a scan without touching the reader.
func (s *Service) Simulate(ctx context.Context, identifier string) (presence.Result, error) {
	return s.record(ctx, parse.NormalizeTag(identifier, false), model.SourceSimulate)
}

// Inject queues identifiers on the simulated reader. Unlike Simulate, they go
// through the poll loop like hardware reads. It returns the queue length.
func (s *Service) Inject(ids ...string) (int, error) {
	sim, ok := s.reader.(*SimulatedReader)
	if !ok {
		return 0, ErrNoSimulator
	}
	sim.Inject(ids...)
	return sim.Pending(), nil
}

func (s *Service) record(ctx context.Context, tag string, source model.ScanSource) (presence.Result, error) {
	return s.engine.RecordScan(ctx, presence.Scan{
		Identifier: tag,
		Mode:       s.engine.Mode(),
		Source:     source,
	})
}
