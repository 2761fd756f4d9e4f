package fiberhome

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olt-collector/internal/domain"
	"olt-collector/internal/logger"
	"olt-collector/internal/unm"
)

type fakeSession struct {
	onus    map[string][]unm.OpticalNetworkUnit
	states  map[string][]unm.OpticalNetworkUnitState
	optics  map[string][]unm.OpticalNetworkUnitInfo
	openErr error
	listErr error
	calls   []string
	closed  bool
}

func (f *fakeSession) Open(context.Context) error { return f.openErr }

func (f *fakeSession) ListONUs(_ context.Context, oltID, ponID string) ([]unm.OpticalNetworkUnit, error) {
	f.calls = append(f.calls, fmt.Sprintf("onus %s %s", oltID, ponID))
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.onus[ponID], nil
}

func (f *fakeSession) ListONUStates(_ context.Context, _, ponID string) ([]unm.OpticalNetworkUnitState, error) {
	f.calls = append(f.calls, "states "+ponID)
	return f.states[ponID], nil
}

func (f *fakeSession) ListOptics(_ context.Context, _, ponID string) ([]unm.OpticalNetworkUnitInfo, error) {
	f.calls = append(f.calls, "optics "+ponID)
	return f.optics[ponID], nil
}

func (f *fakeSession) Close(context.Context) error {
	f.closed = true
	return nil
}

func newTestClient(sess *fakeSession) *Client {
	c := New(domain.OLT{
		ID:       "fh-1",
		Vendor:   domain.VendorFiberHome,
		Host:     "10.0.0.3",
		Port:     3337,
		UNMOltID: "10.0.3.1",
	}, logger.NopAdapter())
	c.dial = func(context.Context) (session, error) { return sess, nil }
	return c
}

func pon11() []unm.OpticalNetworkUnit {
	return []unm.OpticalNetworkUnit{
		{OltID: "10.0.3.1", PonID: "NA-NA-1-1", OnuNo: "1", Name: "cliente 1", OnuType: "AN5506-04-F1", Mac: "FHTT00000001"},
		{OltID: "10.0.3.1", PonID: "NA-NA-1-1", OnuNo: "2", Mac: "FHTT00000002"},
	}
}

func TestListEntities_JoinsPerPon(t *testing.T) {
	sess := &fakeSession{
		onus: map[string][]unm.OpticalNetworkUnit{"NA-NA-1-1": pon11()},
		states: map[string][]unm.OpticalNetworkUnitState{"NA-NA-1-1": {
			{OnuNo: "1", OperState: "ONLINE", AdminState: "ENABLE"},
			{OnuNo: "2", OperState: "LOS"},
		}},
		optics: map[string][]unm.OpticalNetworkUnitInfo{"NA-NA-1-1": {
			{OnuID: "1", RxPower: "-19.52", TxPower: "2.40"},
		}},
	}
	c := newTestClient(sess)

	require.NoError(t, c.Connect(context.Background()))
	records, err := c.ListEntities(context.Background(), []string{"NA-NA-1-1"})
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(context.Background()))
	assert.True(t, sess.closed)

	assert.Equal(t, []string{"onus 10.0.3.1 NA-NA-1-1", "states NA-NA-1-1", "optics NA-NA-1-1"}, sess.calls)

	require.Len(t, records, 2)
	assert.Equal(t, domain.RawRecord{
		"OLTID":      "10.0.3.1",
		"PONID":      "NA-NA-1-1",
		"ONUNO":      "1",
		"NAME":       "cliente 1",
		"ONUTYPE":    "AN5506-04-F1",
		"MAC":        "FHTT00000001",
		"ADMINSTATE": "ENABLE",
		"OPERSTATE":  "ONLINE",
		"RXPOWER":    "-19.52",
		"TXPOWER":    "2.40",
	}, records[0])
	assert.Equal(t, "LOS", records[1]["OPERSTATE"])
	assert.NotContains(t, records[1], "RXPOWER")
}

func TestListEntities_FullScanDerivesPons(t *testing.T) {
	all := append(pon11(), unm.OpticalNetworkUnit{PonID: "NA-NA-2-4", OnuNo: "9"})
	sess := &fakeSession{onus: map[string][]unm.OpticalNetworkUnit{"": all}}
	c := newTestClient(sess)

	require.NoError(t, c.Connect(context.Background()))
	records, err := c.ListEntities(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Equal(t, []string{
		"onus 10.0.3.1 ",
		"states NA-NA-1-1", "optics NA-NA-1-1",
		"states NA-NA-2-4", "optics NA-NA-2-4",
	}, sess.calls)
}

func TestConnect_LoginRejected(t *testing.T) {
	sess := &fakeSession{openErr: fmt.Errorf("falha no login: %w", unm.ErrSessionBusy)}
	c := newTestClient(sess)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceBusy)
	assert.True(t, sess.closed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		busy bool
	}{
		{"busy", unm.ErrSessionBusy, true},
		{"persistent illegal session", fmt.Errorf("%w: %w", unm.ErrMaxRetriesExceeded, unm.ErrIllegalSession), true},
		{"server error", unm.ErrServer, false},
		{"network", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
			assert.Equal(t, tt.busy, errors.Is(err, domain.ErrDeviceBusy))
		})
	}
}

func TestListEntities_ListError(t *testing.T) {
	sess := &fakeSession{listErr: unm.ErrServer}
	c := newTestClient(sess)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.ListEntities(context.Background(), []string{"NA-NA-1-1"})
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}
