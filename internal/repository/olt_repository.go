package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"olt-collector/internal/database"
	"olt-collector/internal/domain"
	"olt-collector/internal/domain/dto"
)

const upsertOltQuery = `
INSERT INTO olt (id, vendor, host, port, username, password, poll_interval, prompt, description, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
    ON CONFLICT (id) DO UPDATE
   SET vendor        = EXCLUDED.vendor,
       host          = EXCLUDED.host,
       port          = EXCLUDED.port,
       username      = EXCLUDED.username,
       password      = EXCLUDED.password,
       poll_interval = EXCLUDED.poll_interval,
       prompt        = EXCLUDED.prompt,
       description   = EXCLUDED.description,
       updated_at    = now();`

const listOltsQuery = `
SELECT id, vendor, host, port, poll_interval, description
  FROM olt
 ORDER BY id;`

type OltRepository struct {
	db database.DB
}

// NewOltRepository creates a new OLT repository instance
func NewOltRepository(db database.DB) *OltRepository {
	if db == nil {
		panic("banco de dados não pode ser nulo")
	}

	return &OltRepository{
		db: db,
	}
}

// UpsertAll writes every configured OLT in a single transaction
func (rpt *OltRepository) UpsertAll(ctx context.Context, olts []domain.OLT) error {
	if len(olts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, olt := range olts {
		batch.Queue(upsertOltQuery,
			olt.ID,
			string(olt.Vendor),
			olt.Host,
			olt.Port,
			nullable(olt.Username),
			nullable(olt.Password),
			int(olt.PollInterval.Seconds()),
			nullable(olt.Prompt),
			nullable(olt.Description),
		)
	}

	err := rpt.db.WithTx(ctx, func(tx pgx.Tx) error {
		return database.SendBatchExecAll(ctx, batch, tx.SendBatch, "olt upsert")
	})
	if err != nil {
		return fmt.Errorf("%w: falha ao sincronizar OLTs: %w", domain.ErrStore, err)
	}

	return nil
}

// List returns the OLT rows currently stored
func (rpt *OltRepository) List(ctx context.Context) ([]dto.OltRow, error) {
	var rows []dto.OltRow
	if err := rpt.db.QueryStruct(ctx, &rows, listOltsQuery); err != nil {
		return nil, fmt.Errorf("%w: falha ao listar OLTs: %w", domain.ErrStore, err)
	}

	return rows, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
