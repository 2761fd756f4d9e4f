package services

import (
	"context"
	"sync"
	"time"

	"olt-collector/internal/domain"
	"olt-collector/internal/domain/dto"
)

type memoryOnt struct {
	id        int64
	serial    *string
	status    domain.StatusCode
	firstSeen time.Time
	lastSeen  time.Time
}

// memoryStore mimics the upsert and append semantics of the PostgreSQL repositories
type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	onts    map[string]map[string]*memoryOnt
	samples []domain.PowerSample

	unresolvable map[string]bool
	resolveErr   error
	appendErr    error
	resolveCalls int
	staleBefore  []time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{onts: make(map[string]map[string]*memoryOnt)}
}

func (m *memoryStore) Resolve(_ context.Context, oltID string, readings []domain.NormalizedReading, seenAt time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolveCalls++
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}

	rows, ok := m.onts[oltID]
	if !ok {
		rows = make(map[string]*memoryOnt)
		m.onts[oltID] = rows
	}

	ids := make(map[string]int64, len(readings))
	for _, reading := range readings {
		row, ok := rows[reading.VendorOntID]
		if !ok {
			m.nextID++
			row = &memoryOnt{id: m.nextID, firstSeen: seenAt}
			rows[reading.VendorOntID] = row
		}
		if row.serial == nil {
			row.serial = reading.Serial
		}
		row.status = reading.Status
		row.lastSeen = seenAt

		if !m.unresolvable[reading.VendorOntID] {
			ids[reading.VendorOntID] = row.id
		}
	}
	return ids, nil
}

func (m *memoryStore) MarkStale(_ context.Context, oltID string, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staleBefore = append(m.staleBefore, olderThan)

	var marked int64
	for _, row := range m.onts[oltID] {
		if row.lastSeen.Before(olderThan) && row.status != domain.StatusUnknown {
			row.status = domain.StatusUnknown
			marked++
		}
	}
	return marked, nil
}

func (m *memoryStore) Append(_ context.Context, samples []domain.PowerSample) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.samples = append(m.samples, samples...)
	return int64(len(samples)), nil
}

func (m *memoryStore) entityCount(oltID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.onts[oltID])
}

type memoryOltStore struct {
	upserted []domain.OLT
	stored   []dto.OltRow
	err      error
	listErr  error
}

func (m *memoryOltStore) UpsertAll(_ context.Context, olts []domain.OLT) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, olts...)
	return nil
}

func (m *memoryOltStore) List(context.Context) ([]dto.OltRow, error) {
	return m.stored, m.listErr
}
