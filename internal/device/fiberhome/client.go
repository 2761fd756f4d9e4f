// Package fiberhome lists ONUs through the FiberHome UNM TL1 northbound interface.
package fiberhome

import (
	"context"
	"errors"
	"fmt"

	"olt-collector/internal/domain"
	"olt-collector/internal/tl1"
	"olt-collector/internal/unm"
)

// session is the part of the UNM client used for listing
type session interface {
	Open(ctx context.Context) error
	ListONUs(ctx context.Context, oltID, ponID string) ([]unm.OpticalNetworkUnit, error)
	ListONUStates(ctx context.Context, oltID, ponID string) ([]unm.OpticalNetworkUnitState, error)
	ListOptics(ctx context.Context, oltID, ponID string) ([]unm.OpticalNetworkUnitInfo, error)
	Close(ctx context.Context) error
}

// Client scans one OLT registered in a UNM server. Selectors are PON ids
// ("NA-NA-1-1"); without selectors every PON of the OLT is scanned.
type Client struct {
	olt  domain.OLT
	log  domain.Logger
	dial func(ctx context.Context) (session, error)
	sess session
}

// New creates a FiberHome client. No I/O happens until Connect.
func New(olt domain.OLT, log domain.Logger) *Client {
	c := &Client{olt: olt, log: log}
	c.dial = c.dialTL1
	return c
}

// Connect dials the UNM server and logs in
func (c *Client) Connect(ctx context.Context) error {
	if c.sess != nil {
		return nil
	}

	sess, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: erro ao conectar via tl1 em %s:%d: %v", domain.ErrDeviceUnavailable, c.olt.Host, c.olt.Port, err)
	}

	if err := sess.Open(ctx); err != nil {
		_ = sess.Close(ctx)
		return classify(err)
	}

	c.sess = sess
	return nil
}

// ListEntities joins LST-ONU, LST-ONUSTATE and LST-OMDDM per PON
func (c *Client) ListEntities(ctx context.Context, selectors []string) ([]domain.RawRecord, error) {
	if c.sess == nil {
		return nil, fmt.Errorf("%w: sessão unm não conectada", domain.ErrDeviceUnavailable)
	}

	oltID := c.olt.UNMOltID

	var (
		onus []unm.OpticalNetworkUnit
		pons = selectors
	)

	if len(pons) == 0 {
		all, err := c.sess.ListONUs(ctx, oltID, "")
		if err != nil {
			return nil, classify(err)
		}
		onus = all
		pons = distinctPons(all)
	} else {
		for _, pon := range pons {
			listed, err := c.sess.ListONUs(ctx, oltID, pon)
			if err != nil {
				return nil, classify(err)
			}
			onus = append(onus, listed...)
		}
	}

	states := make(map[onuKey]unm.OpticalNetworkUnitState, len(onus))
	optics := make(map[onuKey]unm.OpticalNetworkUnitInfo, len(onus))

	for _, pon := range pons {
		ponStates, err := c.sess.ListONUStates(ctx, oltID, pon)
		if err != nil {
			return nil, classify(err)
		}
		for _, state := range ponStates {
			states[onuKey{pon: pon, onu: state.OnuNo}] = state
		}

		ponOptics, err := c.sess.ListOptics(ctx, oltID, pon)
		if err != nil {
			return nil, classify(err)
		}
		for _, info := range ponOptics {
			optics[onuKey{pon: pon, onu: info.OnuID}] = info
		}

		c.log.WithFields(map[string]any{
			"pon":    pon,
			"states": len(ponStates),
			"optics": len(ponOptics),
		}).Debug("PON fiberhome varrida")
	}

	records := make([]domain.RawRecord, 0, len(onus))
	for _, onu := range onus {
		key := onuKey{pon: onu.PonID, onu: onu.OnuNo}
		records = append(records, toRecord(onu, states[key], optics[key]))
	}

	return records, nil
}

// Disconnect logs out and closes the TL1 connection
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sess == nil {
		return nil
	}

	sess := c.sess
	c.sess = nil

	return sess.Close(ctx)
}

func (c *Client) dialTL1(ctx context.Context) (session, error) {
	transport, err := tl1.Dial(ctx, c.olt.Host, uint16(c.olt.Port), c.olt.Timeout)
	if err != nil {
		return nil, err
	}
	return unm.New(c.olt.Username, c.olt.Password, transport, c.log), nil
}

type onuKey struct {
	pon string
	onu string
}

func distinctPons(onus []unm.OpticalNetworkUnit) []string {
	seen := make(map[string]struct{})
	var pons []string

	for _, onu := range onus {
		if onu.PonID == "" {
			continue
		}
		if _, ok := seen[onu.PonID]; ok {
			continue
		}
		seen[onu.PonID] = struct{}{}
		pons = append(pons, onu.PonID)
	}

	return pons
}

func toRecord(onu unm.OpticalNetworkUnit, state unm.OpticalNetworkUnitState, info unm.OpticalNetworkUnitInfo) domain.RawRecord {
	record := make(domain.RawRecord, 20)

	set := func(key, value string) {
		if value != "" {
			record[key] = value
		}
	}

	set("OLTID", onu.OltID)
	set("PONID", onu.PonID)
	set("ONUNO", onu.OnuNo)
	set("NAME", onu.Name)
	set("DESC", onu.Desc)
	set("ONUTYPE", onu.OnuType)
	set("IP", onu.IP)
	set("AUTHTYPE", onu.AuthType)
	set("MAC", onu.Mac)
	set("LOID", onu.LoID)
	set("SWVER", onu.SwVer)
	set("HWVER", onu.HwVer)

	set("ADMINSTATE", state.AdminState)
	set("OPERSTATE", state.OperState)
	set("AUTHSTATE", state.AuthState)

	set("RXPOWER", info.RxPower)
	set("TXPOWER", info.TxPower)
	set("TEMPERATURE", info.Temperature)
	set("VOLTAGE", info.Voltage)
	set("CURRTXBIAS", info.CurrTxBias)

	return record
}

// classify maps UNM failures onto the device error taxonomy
func classify(err error) error {
	switch {
	case errors.Is(err, unm.ErrSessionBusy),
		errors.Is(err, unm.ErrMaxRetriesExceeded) && errors.Is(err, unm.ErrIllegalSession):
		return fmt.Errorf("%w: %v", domain.ErrDeviceBusy, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
}
