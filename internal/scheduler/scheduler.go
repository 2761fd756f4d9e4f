// Package scheduler runs one independent poll loop per OLT.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gookit/event"

	"olt-collector/internal/domain"
)

const (
	stateIdle int32 = iota
	statePolling
)

// PollFunc runs one cycle stamped at
type PollFunc func(ctx context.Context, at time.Time) domain.CycleResult

// Job is the unit the scheduler drives, one per OLT
type Job struct {
	OLT  domain.OLT
	Poll PollFunc
}

// Options tune the scheduler; the zero value polls on the first tick only
type Options struct {
	PollOnStart bool
	Clock       Clock
}

// OLTPoller owns the Idle/Polling state of one OLT. At most one cycle per
// OLT is in flight; triggers arriving meanwhile are dropped, not queued.
type OLTPoller struct {
	olt          domain.OLT
	poll         PollFunc
	clock        Clock
	eventManager *event.Manager
	logger       domain.Observability

	state    atomic.Int32
	dropped  atomic.Int64
	inflight sync.WaitGroup

	mu   sync.Mutex
	last time.Time
}

func newOLTPoller(job Job, clock Clock, eventManager *event.Manager, logger domain.Observability) *OLTPoller {
	return &OLTPoller{
		olt:          job.OLT,
		poll:         job.Poll,
		clock:        clock,
		eventManager: eventManager,
		logger:       logger,
	}
}

// Trigger starts a cycle unless one is running and reports whether it did
func (p *OLTPoller) Trigger(ctx context.Context) bool {
	if !p.state.CompareAndSwap(stateIdle, statePolling) {
		dropped := p.dropped.Add(1)
		p.logger.WithFields(map[string]any{
			"olt_id":  p.olt.ID,
			"dropped": dropped,
		}).Warn("Ciclo anterior ainda em execução, disparo descartado")
		p.eventManager.MustFire(domain.EventTriggerDropped, event.M{"olt": p.olt.ID})
		return false
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer p.state.Store(stateIdle)

		p.runCycle(ctx)
	}()

	return true
}

// Polling reports whether a cycle is in flight
func (p *OLTPoller) Polling() bool {
	return p.state.Load() == statePolling
}

// Dropped returns how many triggers were dropped so far
func (p *OLTPoller) Dropped() int64 {
	return p.dropped.Load()
}

func (p *OLTPoller) runCycle(ctx context.Context) {
	at := p.nextTimestamp()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pânico no ciclo de coleta: %v", r)
			p.logger.WithError(err).WithFields(map[string]any{
				"olt_id": p.olt.ID,
				"stack":  string(debug.Stack()),
			}).Error("Ciclo de coleta interrompido")

			p.eventManager.MustFire(domain.EventCycleFinished, event.M{"result": domain.CycleResult{
				OltID:     p.olt.ID,
				Vendor:    p.olt.Vendor,
				StartedAt: at,
				Err:       err,
			}})
		}
	}()

	p.report(p.poll(ctx, at))
}

func (p *OLTPoller) report(result domain.CycleResult) {
	log := p.logger.WithFields(map[string]any{
		"olt_id":   result.OltID,
		"cycle_id": result.CycleID,
		"duration": result.Duration.Round(time.Millisecond).String(),
	})

	if result.Err != nil {
		log.WithError(result.Err).WithField("kind", domain.ErrorKind(result.Err)).Warn("Ciclo de coleta falhou")
		return
	}

	log.WithFields(map[string]any{
		"records":    result.Records,
		"dropped":    result.Dropped,
		"unresolved": result.Unresolved,
		"samples":    result.SamplesWritten,
	}).Info("Ciclo de coleta concluído")
	p.logger.Benchmark("ciclo "+result.OltID, result.Duration)
}

// nextTimestamp keeps cycle timestamps strictly increasing at the
// microsecond resolution of the store
func (p *OLTPoller) nextTimestamp() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(p.last) {
		now = p.last.Add(time.Microsecond)
	}
	p.last = now

	return now
}

func (p *OLTPoller) run(ctx context.Context, pollOnStart bool) {
	ticker := p.clock.Ticker(p.olt.PollInterval)
	defer ticker.Stop()

	if pollOnStart {
		p.Trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Trigger(ctx)
		}
	}
}

type Scheduler struct {
	pollers     []*OLTPoller
	pollOnStart bool
	logger      domain.Observability

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates one poller per job. Every job needs a positive interval.
func New(jobs []Job, eventManager *event.Manager, logger domain.Observability, opts Options) (*Scheduler, error) {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}

	pollers := make([]*OLTPoller, 0, len(jobs))
	for _, job := range jobs {
		if job.OLT.PollInterval <= 0 {
			return nil, fmt.Errorf("%w: OLT %s sem intervalo de coleta", domain.ErrConfig, job.OLT.ID)
		}
		if job.Poll == nil {
			return nil, fmt.Errorf("%w: OLT %s sem função de coleta", domain.ErrConfig, job.OLT.ID)
		}
		pollers = append(pollers, newOLTPoller(job, clock, eventManager, logger))
	}

	return &Scheduler{
		pollers:     pollers,
		pollOnStart: opts.PollOnStart,
		logger:      logger,
	}, nil
}

// Start launches every poll loop; each OLT ticks independently
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, poller := range s.pollers {
		s.wg.Add(1)
		go func(p *OLTPoller) {
			defer s.wg.Done()
			p.run(ctx, s.pollOnStart)
		}(poller)

		s.logger.WithFields(map[string]any{
			"olt_id":   poller.olt.ID,
			"vendor":   string(poller.olt.Vendor),
			"interval": poller.olt.PollInterval.String(),
		}).Info("Agendamento de coleta iniciado")
	}
}

// Stop cancels the loops and waits for cycles still in flight
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()

	for _, poller := range s.pollers {
		poller.inflight.Wait()
	}

	s.logger.Success("Agendador encerrado")
}

// Pollers exposes the per OLT pollers
func (s *Scheduler) Pollers() []*OLTPoller {
	return s.pollers
}
