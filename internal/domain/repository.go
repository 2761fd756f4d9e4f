package domain

import (
	"context"
	"time"

	"olt-collector/internal/domain/dto"
)

// OltRepository persists OLT connection parameters
type OltRepository interface {
	UpsertAll(ctx context.Context, olts []OLT) error
	List(ctx context.Context) ([]dto.OltRow, error)
}

// OntRepository upserts ONT metadata and resolves vendor identifiers to surrogate ids
type OntRepository interface {
	Resolve(ctx context.Context, oltID string, readings []NormalizedReading, seenAt time.Time) (map[string]int64, error)
	MarkStale(ctx context.Context, oltID string, olderThan time.Time) (int64, error)
}

// PowerRepository appends power samples
type PowerRepository interface {
	Append(ctx context.Context, samples []PowerSample) (int64, error)
}
