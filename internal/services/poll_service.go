package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/event"

	"olt-collector/internal/domain"
	"olt-collector/internal/normalize"
)

const (
	MaxBusyAttempts    = 3
	DefaultBusyBackoff = time.Second
	disconnectTimeout  = 5 * time.Second
)

type PollService struct {
	onts             domain.OntRepository
	power            domain.PowerRepository
	eventManager     *event.Manager
	logger           domain.Logger
	storeTimeout     time.Duration
	staleAfterCycles int
	busyBackoff      time.Duration
}

// NewPollService creates the service running one poll cycle of an OLT
func NewPollService(
	onts domain.OntRepository,
	power domain.PowerRepository,
	eventManager *event.Manager,
	logger domain.Logger,
	storeTimeout time.Duration,
	staleAfterCycles int,
) *PollService {
	return &PollService{
		onts:             onts,
		power:            power,
		eventManager:     eventManager,
		logger:           logger,
		storeTimeout:     storeTimeout,
		staleAfterCycles: staleAfterCycles,
		busyBackoff:      DefaultBusyBackoff,
	}
}

// Poll runs one cycle for the target: scan the device, normalize, resolve
// identifiers and append one sample per resolved reading, all stamped at.
// Nothing is written when the device phase fails.
func (s *PollService) Poll(ctx context.Context, target *Target, at time.Time) domain.CycleResult {
	started := time.Now()
	result := domain.CycleResult{
		CycleID:   uuid.NewString(),
		OltID:     target.OLT.ID,
		Vendor:    target.OLT.Vendor,
		StartedAt: at,
	}

	log := s.logger.WithFields(map[string]any{
		"olt_id":   target.OLT.ID,
		"vendor":   string(target.OLT.Vendor),
		"cycle_id": result.CycleID,
	})

	result.Err = s.run(ctx, target, at, log, &result)
	result.Duration = time.Since(started)

	s.eventManager.MustFire(domain.EventCycleFinished, event.M{"result": result})

	return result
}

func (s *PollService) run(ctx context.Context, target *Target, at time.Time, log domain.Logger, result *domain.CycleResult) error {
	records, err := s.collect(ctx, target, log)
	if err != nil {
		return err
	}
	result.Records = len(records)

	batch := normalize.NormalizeBatch(target.Normalizer, records)
	result.Dropped = batch.Dropped
	for _, anomaly := range batch.Anomalies {
		log.WithError(anomaly).Warn("Registro descartado na normalização")
	}
	if batch.Duplicates > 0 {
		log.WithField("duplicates", batch.Duplicates).Debug("Identificadores repetidos na varredura, última leitura mantida")
	}

	if len(batch.Readings) == 0 {
		log.Info("Nenhuma ONT retornada pela OLT")
		return s.markStale(ctx, target, at, log)
	}

	ids, err := s.resolve(ctx, target.OLT.ID, batch.Readings, at)
	if err != nil {
		return err
	}
	result.EntitiesStored = len(ids)

	samples := make([]domain.PowerSample, 0, len(batch.Readings))
	for _, reading := range batch.Readings {
		ontID, ok := ids[reading.VendorOntID]
		if !ok {
			result.Unresolved++
			log.WithField("vendor_ont_id", reading.VendorOntID).Warn("ONT sem identificador resolvido, amostra descartada")
			continue
		}

		samples = append(samples, domain.PowerSample{
			Time:   at,
			OntID:  ontID,
			Tx:     reading.Tx,
			Rx:     reading.Rx,
			Status: reading.Status,
		})
	}

	written, err := s.append(ctx, samples)
	if err != nil {
		return err
	}
	result.SamplesWritten = written

	return s.markStale(ctx, target, at, log)
}

// collect runs the device phase, retrying a busy device within the phase deadline
func (s *PollService) collect(ctx context.Context, target *Target, log domain.Logger) ([]domain.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, target.deviceDeadline())
	defer cancel()

	var lastErr error

	for attempt := 1; attempt <= MaxBusyAttempts; attempt++ {
		records, err := s.scan(ctx, target, log)
		if err == nil {
			return records, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrDeviceBusy) || attempt == MaxBusyAttempts {
			break
		}

		log.WithError(err).WithField("attempt", attempt).Warn("OLT ocupada, nova tentativa")

		if err := sleepCtx(ctx, s.busyBackoff*time.Duration(attempt)); err != nil {
			break
		}
	}

	return nil, lastErr
}

// scan performs connect, list and disconnect. Disconnect always runs.
func (s *PollService) scan(ctx context.Context, target *Target, log domain.Logger) ([]domain.RawRecord, error) {
	client := target.Client

	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()

		if err := client.Disconnect(dctx); err != nil {
			log.WithError(err).Debug("Falha ao encerrar sessão com a OLT")
		}
	}()

	if err := client.Connect(ctx); err != nil {
		return nil, deviceError(ctx, "conexão", err)
	}

	records, err := client.ListEntities(ctx, target.OLT.ScanSelectors)
	if err != nil {
		return nil, deviceError(ctx, "varredura", err)
	}

	return records, nil
}

func (s *PollService) resolve(ctx context.Context, oltID string, readings []domain.NormalizedReading, at time.Time) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	ids, err := s.onts.Resolve(ctx, oltID, readings, at)
	if err != nil {
		return nil, storeError(err)
	}
	return ids, nil
}

func (s *PollService) append(ctx context.Context, samples []domain.PowerSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	written, err := s.power.Append(ctx, samples)
	if err != nil {
		return 0, storeError(err)
	}
	return written, nil
}

// markStale flags ONTs missing for staleAfterCycles poll intervals. A
// failure here is logged only: the cycle's samples are already stored.
func (s *PollService) markStale(ctx context.Context, target *Target, at time.Time, log domain.Logger) error {
	if s.staleAfterCycles <= 0 || target.OLT.PollInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	olderThan := at.Add(-time.Duration(s.staleAfterCycles) * target.OLT.PollInterval)

	marked, err := s.onts.MarkStale(ctx, target.OLT.ID, olderThan)
	if err != nil {
		log.WithError(err).Warn("Falha ao marcar ONTs ausentes")
		return nil
	}

	if marked > 0 {
		log.WithField("marked", marked).Info("ONTs ausentes marcadas com status desconhecido")
	}
	return nil
}

// deviceError keeps the adapter classification and turns anything else,
// including an expired phase deadline, into a device failure
func deviceError(ctx context.Context, phase string, err error) error {
	if errors.Is(err, domain.ErrDeviceUnavailable) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s interrompida: %w", domain.ErrDeviceUnavailable, phase, ctxErr)
	}
	return fmt.Errorf("%w: falha na %s: %w", domain.ErrDeviceUnavailable, phase, err)
}

func storeError(err error) error {
	if errors.Is(err, domain.ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStore, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
