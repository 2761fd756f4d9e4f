package services

import (
	"context"
	"fmt"

	"olt-collector/internal/domain"
)

type ConfigSyncService struct {
	repository domain.OltRepository
	logger     domain.Logger
}

// NewConfigSyncService creates a new config sync service instance
func NewConfigSyncService(repository domain.OltRepository, logger domain.Logger) *ConfigSyncService {
	return &ConfigSyncService{
		repository: repository,
		logger:     logger,
	}
}

// Sync writes every configured OLT to the store. It runs once at startup,
// before any poll, and its failure must stop the process.
func (s *ConfigSyncService) Sync(ctx context.Context, olts []domain.OLT) error {
	s.logger.WithField("olts", len(olts)).Info("Sincronizando OLTs configuradas")

	if err := s.repository.UpsertAll(ctx, olts); err != nil {
		return fmt.Errorf("falha na sincronização das OLTs: %w", err)
	}

	stored, err := s.repository.List(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Falha ao listar OLTs do banco após sincronização")
		return nil
	}

	configured := make(map[string]struct{}, len(olts))
	for _, olt := range olts {
		configured[olt.ID] = struct{}{}
	}

	for _, row := range stored {
		if _, ok := configured[row.ID]; !ok {
			s.logger.WithFields(map[string]any{
				"olt_id": row.ID,
				"vendor": row.Vendor,
			}).Warn("OLT registrada no banco mas ausente da configuração, não será consultada")
		}
	}

	s.logger.WithField("olts", len(olts)).Info("OLTs sincronizadas com sucesso")
	return nil
}
