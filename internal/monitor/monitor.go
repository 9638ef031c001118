package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// Measurement is the influx measurement status points are written to.
const Measurement = "engine_status"

// PointWriter accepts status points. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	// Matches lists the live match ids.
	Matches func() []string
	// Pending reports rows waiting on the storage writer. Optional.
	Pending func() int

	Logger     *slog.Logger
	Points     PointWriter
	StatusFile string
	Interval   time.Duration
	Now        func() time.Time
}

// Status is one snapshot of the engine.
type Status struct {
	Time          time.Time `json:"time"`
	Uptime        string    `json:"uptime"`
	ActiveMatches int       `json:"activeMatches"`
	Matches       []string  `json:"matches"`
	PendingWrites int       `json:"pendingWrites"`
}

// Service periodically reports engine status.
type Service struct {
	deps    Dependencies
	started time.Time

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps, started: deps.Now()}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Snapshot collects the current status.
func (s *Service) Snapshot() Status {
	now := s.deps.Now()
	st := Status{
		Time:    now,
		Uptime:  now.Sub(s.started).Round(time.Second).String(),
		Matches: []string{},
	}
	if s.deps.Matches != nil {
		st.Matches = s.deps.Matches()
	}
	st.ActiveMatches = len(st.Matches)
	if s.deps.Pending != nil {
		st.PendingWrites = s.deps.Pending()
	}
	return st
}

// Point converts a status into a line protocol point.
func Point(st Status) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		Measurement,
		nil,
		map[string]any{
			"active_matches": st.ActiveMatches,
			"pending_writes": st.PendingWrites,
		},
		st.Time,
	)
}

// Report takes one snapshot and publishes it to the status file and the
// point writer, whichever are configured.
func (s *Service) Report(ctx context.Context) (Status, error) {
	st := s.Snapshot()

	if s.deps.StatusFile != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return st, fmt.Errorf("encoding status: %w", err)
		}
		if err := os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0644); err != nil {
			return st, fmt.Errorf("writing status file: %w", err)
		}
	}

	if s.deps.Points != nil {
		if err := s.deps.Points.WritePoint(ctx, Point(st)); err != nil {
			return st, fmt.Errorf("writing status point: %w", err)
		}
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval, "statusFile", s.deps.StatusFile)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st, err := s.Report(context.Background())
			if err != nil {
				s.deps.Logger.Error("Status report failed", "error", err)
				continue
			}
			if st.ActiveMatches > 0 || st.PendingWrites > 0 {
				s.deps.Logger.Debug("Engine status", "activeMatches", st.ActiveMatches, "pendingWrites", st.PendingWrites)
			}
		}
	}
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
