package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig            = errors.New("configuração inválida")
	ErrDeviceUnavailable = errors.New("equipamento indisponível")
	ErrDeviceBusy        = fmt.Errorf("%w: equipamento ocupado", ErrDeviceUnavailable)
	ErrNormalization     = errors.New("anomalia de normalização")
	ErrStore             = errors.New("erro de armazenamento")
)

// ErrorKind maps an error to a short label used by logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrDeviceBusy):
		return "device_busy"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device"
	case errors.Is(err, ErrNormalization):
		return "normalization"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}
