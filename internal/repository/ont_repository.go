package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"olt-collector/internal/database"
	"olt-collector/internal/domain"
	"olt-collector/internal/domain/dto"
)

// serializes concurrent writers of the same OLT until commit
const lockOltQuery = `SELECT pg_advisory_xact_lock(hashtext('olt:' || $1));`

// serial, model and description are set once and never overwritten
const upsertOntQuery = `
INSERT INTO ont (olt_id, vendor_ont_id, serial, model, description, status, props, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
    ON CONFLICT (olt_id, vendor_ont_id) DO UPDATE
   SET serial      = COALESCE(ont.serial, EXCLUDED.serial),
       model       = COALESCE(ont.model, EXCLUDED.model),
       description = COALESCE(ont.description, EXCLUDED.description),
       status      = EXCLUDED.status,
       props       = EXCLUDED.props,
       last_seen   = EXCLUDED.last_seen;`

const selectOntIDsQuery = `
SELECT id, vendor_ont_id
  FROM ont
 WHERE olt_id = $1
   AND vendor_ont_id = ANY($2);`

const markStaleQuery = `
UPDATE ont
   SET status = $3
 WHERE olt_id = $1
   AND last_seen < $2
   AND status <> $3;`

var emptyProps = json.RawMessage(`{}`)

type OntRepository struct {
	db database.DB
}

// NewOntRepository creates a new ONT repository instance
func NewOntRepository(db database.DB) *OntRepository {
	if db == nil {
		panic("banco de dados não pode ser nulo")
	}

	return &OntRepository{
		db: db,
	}
}

// Resolve upserts the readings of one OLT and returns the surrogate id of
// every vendor identifier, all inside one transaction holding the OLT lock.
func (rpt *OntRepository) Resolve(ctx context.Context, oltID string, readings []domain.NormalizedReading, seenAt time.Time) (map[string]int64, error) {
	ids := make(map[string]int64, len(readings))
	if len(readings) == 0 {
		return ids, nil
	}

	batch := &pgx.Batch{}
	vendorIDs := make([]string, 0, len(readings))

	for _, reading := range readings {
		props := reading.Metadata
		if len(props) == 0 {
			props = emptyProps
		}

		batch.Queue(upsertOntQuery,
			oltID,
			reading.VendorOntID,
			reading.Serial,
			reading.Model,
			reading.Description,
			int16(reading.Status),
			props,
			seenAt,
		)
		vendorIDs = append(vendorIDs, reading.VendorOntID)
	}

	err := rpt.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockOltQuery, oltID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		if err := database.SendBatchExecAll(ctx, batch, tx.SendBatch, "ont upsert"); err != nil {
			return err
		}

		var keys []dto.OntKey
		if err := pgxscan.Select(ctx, tx, &keys, selectOntIDsQuery, oltID, vendorIDs); err != nil {
			return fmt.Errorf("select ids: %w", err)
		}

		for _, key := range keys {
			ids[key.VendorOntID] = key.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: falha ao resolver ONTs da OLT %s: %w", domain.ErrStore, oltID, err)
	}

	return ids, nil
}

// MarkStale sets status unknown on ONTs of the OLT not seen since olderThan
func (rpt *OntRepository) MarkStale(ctx context.Context, oltID string, olderThan time.Time) (int64, error) {
	var marked int64

	err := rpt.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockOltQuery, oltID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		tag, err := tx.Exec(ctx, markStaleQuery, oltID, olderThan, int16(domain.StatusUnknown))
		if err != nil {
			return err
		}
		marked = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: falha ao marcar ONTs inativas da OLT %s: %w", domain.ErrStore, oltID, err)
	}

	return marked, nil
}
