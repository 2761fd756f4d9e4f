// Package device adapts vendor session protocols into raw ONT records.
package device

//go:generate mockgen -source=device.go -destination=mock_device.go -package=device

import (
	"context"
	"fmt"

	"olt-collector/internal/device/fiberhome"
	"olt-collector/internal/device/huawei"
	"olt-collector/internal/device/zyxel"
	"olt-collector/internal/domain"
)

// ErrBusy marks a device that rejected the session because another one is open
var ErrBusy = domain.ErrDeviceBusy

// Client is the per-OLT session with a line terminal. Calls are strictly
// sequential: Connect, one ListEntities, Disconnect.
type Client interface {
	Connect(ctx context.Context) error
	ListEntities(ctx context.Context, selectors []string) ([]domain.RawRecord, error)
	Disconnect(ctx context.Context) error
}

// New selects the client of the OLT's vendor family
func New(olt domain.OLT, log domain.Logger) (Client, error) {
	log = log.WithFields(map[string]any{
		"olt_id": olt.ID,
		"vendor": string(olt.Vendor),
	})

	switch {
	case olt.Vendor.IsZyxel():
		return zyxel.New(olt, log), nil
	case olt.Vendor == domain.VendorHuawei:
		return huawei.New(olt, log), nil
	case olt.Vendor == domain.VendorFiberHome:
		return fiberhome.New(olt, log), nil
	default:
		return nil, fmt.Errorf("%w: nenhum cliente de equipamento para o vendor %q", domain.ErrConfig, olt.Vendor)
	}
}
