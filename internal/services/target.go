package services

import (
	"fmt"
	"time"

	"olt-collector/internal/device"
	"olt-collector/internal/domain"
	"olt-collector/internal/normalize"
)

// Target binds an OLT to the device client and record normalizer of its
// vendor family. Both are chosen once, when the configuration is loaded.
type Target struct {
	OLT        domain.OLT
	Client     device.Client
	Normalizer normalize.Normalizer
}

// NewTarget selects the vendor implementations for an OLT
func NewTarget(olt domain.OLT, table *normalize.StatusTable, logger domain.Logger) (*Target, error) {
	client, err := device.New(olt, logger)
	if err != nil {
		return nil, fmt.Errorf("OLT %s: %w", olt.ID, err)
	}

	normalizer, err := normalize.ForVendor(olt.Vendor, table)
	if err != nil {
		return nil, fmt.Errorf("OLT %s: %w", olt.ID, err)
	}

	return &Target{
		OLT:        olt,
		Client:     client,
		Normalizer: normalizer,
	}, nil
}

// NewTargets builds one target per configured OLT
func NewTargets(olts []domain.OLT, table *normalize.StatusTable, logger domain.Logger) ([]*Target, error) {
	targets := make([]*Target, 0, len(olts))
	for _, olt := range olts {
		target, err := NewTarget(olt, table, logger)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// deviceDeadline bounds a whole device phase; a single round-trip is
// bounded by the OLT timeout inside the client
func (t *Target) deviceDeadline() time.Duration {
	if t.OLT.PollInterval > t.OLT.Timeout {
		return t.OLT.PollInterval
	}
	return t.OLT.Timeout
}
