package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"olt-collector/internal/database"
	"olt-collector/internal/domain"
)

var powerColumns = []string{"time", "ont_id", "ptx", "prx", "status"}

type PowerRepository struct {
	db database.DB
}

// NewPowerRepository creates a new power sample repository instance
func NewPowerRepository(db database.DB) *PowerRepository {
	if db == nil {
		panic("banco de dados não pode ser nulo")
	}

	return &PowerRepository{
		db: db,
	}
}

// Append copies the samples of one cycle into ont_power. Either every
// sample is written or none is.
func (rpt *PowerRepository) Append(ctx context.Context, samples []domain.PowerSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var written int64

	err := rpt.db.WithTx(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"ont_power"}, powerColumns,
			pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
				sample := samples[i]
				return []any{
					sample.Time,
					sample.OntID,
					sample.Tx.Ptr(),
					sample.Rx.Ptr(),
					int16(sample.Status),
				}, nil
			}),
		)
		written = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: falha ao gravar amostras de potência: %w", domain.ErrStore, err)
	}

	return written, nil
}
