package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gookit/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"olt-collector/internal/device"
	"olt-collector/internal/domain"
	"olt-collector/internal/logger"
	"olt-collector/internal/normalize"
)

var cycleAt = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

type pollFixture struct {
	client  *device.MockClient
	store   *memoryStore
	service *PollService
	target  *Target
	results []domain.CycleResult
}

func newPollFixture(t *testing.T, olt domain.OLT) *pollFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	table, err := normalize.DefaultStatusTable()
	require.NoError(t, err)

	normalizer, err := normalize.ForVendor(olt.Vendor, table)
	require.NoError(t, err)

	f := &pollFixture{
		client: device.NewMockClient(ctrl),
		store:  newMemoryStore(),
	}

	em := event.NewManager("test")
	em.On(domain.EventCycleFinished, event.ListenerFunc(func(e event.Event) error {
		f.results = append(f.results, e.Get("result").(domain.CycleResult))
		return nil
	}))

	f.service = NewPollService(f.store, f.store, em, logger.NopAdapter(), time.Second, 0)
	f.service.busyBackoff = 0
	f.target = &Target{OLT: olt, Client: f.client, Normalizer: normalizer}

	return f
}

func zyxelOLT() domain.OLT {
	return domain.OLT{
		ID:           "zyxel-1",
		Vendor:       domain.VendorZyxel1408A,
		Host:         "10.0.0.1",
		Port:         23,
		PollInterval: 5 * time.Minute,
		Timeout:      5 * time.Second,
	}
}

func (f *pollFixture) expectScan(records []domain.RawRecord, err error) {
	f.client.EXPECT().Connect(gomock.Any()).Return(nil)
	f.client.EXPECT().ListEntities(gomock.Any(), f.target.OLT.ScanSelectors).Return(records, err)
	f.client.EXPECT().Disconnect(gomock.Any()).Return(nil)
}

func TestPoll_ScenarioA(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.expectScan([]domain.RawRecord{
		{"AID": "1-1-1-1", "Status": "IS", "ONT Tx": "3.2", "ONT Rx": "-21 dBm"},
	}, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)
	assert.True(t, result.Succeeded())
	assert.NotEmpty(t, result.CycleID)
	assert.Equal(t, 1, result.Records)
	assert.EqualValues(t, 1, result.SamplesWritten)

	require.Len(t, f.store.samples, 1)
	sample := f.store.samples[0]
	assert.Equal(t, cycleAt, sample.Time)
	assert.Equal(t, domain.PowerValue{Value: 3.2, Valid: true}, sample.Tx)
	assert.Equal(t, domain.PowerValue{Value: -21.0, Valid: true}, sample.Rx)
	assert.Equal(t, domain.StatusUp, sample.Status)

	require.Len(t, f.results, 1, "cycle.finished fired once")
	assert.Equal(t, result.CycleID, f.results[0].CycleID)
}

func TestPoll_ScenarioB_UnknownStatusStillStored(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.expectScan([]domain.RawRecord{
		{"AID": "1-1-1-1", "Status": "XYZ", "ONT Tx": "3.2", "ONT Rx": "-21 dBm"},
	}, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)

	require.Len(t, f.store.samples, 1)
	assert.Equal(t, domain.StatusUnknown, f.store.samples[0].Status)
	assert.Equal(t, 1, f.store.entityCount("zyxel-1"))
}

func TestPoll_ScenarioC_SequentialCyclesKeepEntity(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	record := domain.RawRecord{"AID": "1-1-1-1", "Status": "IS", "ONT Rx": "-21"}

	f.expectScan([]domain.RawRecord{record}, nil)
	f.expectScan([]domain.RawRecord{record}, nil)

	first := f.service.Poll(context.Background(), f.target, cycleAt)
	second := f.service.Poll(context.Background(), f.target, cycleAt.Add(5*time.Minute))
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)

	require.Len(t, f.store.samples, 2)
	assert.True(t, f.store.samples[1].Time.After(f.store.samples[0].Time))
	assert.Equal(t, f.store.samples[0].OntID, f.store.samples[1].OntID)
	assert.Equal(t, 1, f.store.entityCount("zyxel-1"))
}

func TestPoll_OneSamplePerResolvedReading(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.store.unresolvable = map[string]bool{"1-1-1-2": true}
	f.expectScan([]domain.RawRecord{
		{"AID": "1-1-1-1", "Status": "IS"},
		{"AID": "1-1-1-2", "Status": "IS"},
		{"AID": "1-1-1-3", "Status": "OOS-LS"},
		{"Status": "IS"},
	}, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)

	assert.Equal(t, 4, result.Records)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, result.Unresolved)
	assert.EqualValues(t, 2, result.SamplesWritten)
	require.Len(t, f.store.samples, 2)
	assert.Equal(t, domain.StatusDegraded, f.store.samples[1].Status)
}

func TestPoll_DeviceFailureWritesNothing(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.expectScan(nil, fmt.Errorf("%w: ssh: handshake failed", domain.ErrDeviceUnavailable))

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, domain.ErrDeviceUnavailable)
	assert.Zero(t, f.store.resolveCalls)
	assert.Empty(t, f.store.samples)
	require.Len(t, f.results, 1)
	assert.False(t, f.results[0].Succeeded())
}

func TestPoll_ConnectErrorIsClassifiedAndDisconnected(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.client.EXPECT().Connect(gomock.Any()).Return(errors.New("dial tcp: connection refused"))
	f.client.EXPECT().Disconnect(gomock.Any()).Return(nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	assert.ErrorIs(t, result.Err, domain.ErrDeviceUnavailable)
	assert.Equal(t, "device", domain.ErrorKind(result.Err))
}

func TestPoll_BusyDeviceIsRetried(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	busy := fmt.Errorf("%w: another session is active", domain.ErrDeviceBusy)

	gomock.InOrder(
		f.client.EXPECT().Connect(gomock.Any()).Return(busy),
		f.client.EXPECT().Disconnect(gomock.Any()).Return(nil),
		f.client.EXPECT().Connect(gomock.Any()).Return(nil),
		f.client.EXPECT().ListEntities(gomock.Any(), gomock.Any()).Return([]domain.RawRecord{{"AID": "1-1-1-1", "Status": "IS"}}, nil),
		f.client.EXPECT().Disconnect(gomock.Any()).Return(nil),
	)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)
	assert.Len(t, f.store.samples, 1)
}

func TestPoll_BusyDeviceGivesUpAfterMaxAttempts(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	busy := fmt.Errorf("%w: too many users", domain.ErrDeviceBusy)

	f.client.EXPECT().Connect(gomock.Any()).Return(busy).Times(MaxBusyAttempts)
	f.client.EXPECT().Disconnect(gomock.Any()).Return(nil).Times(MaxBusyAttempts)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	assert.ErrorIs(t, result.Err, domain.ErrDeviceBusy)
	assert.Equal(t, "device_busy", domain.ErrorKind(result.Err))
}

func TestPoll_DeviceDeadlineAbandonsCycle(t *testing.T) {
	olt := zyxelOLT()
	olt.PollInterval = 20 * time.Millisecond
	olt.Timeout = 10 * time.Millisecond
	f := newPollFixture(t, olt)

	f.client.EXPECT().Connect(gomock.Any()).Return(nil)
	f.client.EXPECT().ListEntities(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []string) ([]domain.RawRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	f.client.EXPECT().Disconnect(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		assert.NoError(t, ctx.Err(), "disconnect gets a live context")
		return nil
	})

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, domain.ErrDeviceUnavailable)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Empty(t, f.store.samples)
}

func TestPoll_StoreFailureAbandonsCycle(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.store.appendErr = errors.New("copy failed")
	f.expectScan([]domain.RawRecord{{"AID": "1-1-1-1", "Status": "IS"}}, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	assert.ErrorIs(t, result.Err, domain.ErrStore)
	assert.Equal(t, 1, f.store.entityCount("zyxel-1"), "entity upsert stays committed")
	assert.Empty(t, f.store.samples)
}

func TestPoll_EmptyScan(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.expectScan(nil, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)
	assert.Zero(t, f.store.resolveCalls)
}

func TestPoll_StaleMarking(t *testing.T) {
	f := newPollFixture(t, zyxelOLT())
	f.service.staleAfterCycles = 3

	f.expectScan([]domain.RawRecord{{"AID": "1-1-1-1", "Status": "IS"}, {"AID": "1-1-1-2", "Status": "IS"}}, nil)
	f.expectScan([]domain.RawRecord{{"AID": "1-1-1-1", "Status": "IS"}}, nil)

	require.NoError(t, f.service.Poll(context.Background(), f.target, cycleAt).Err)
	later := cycleAt.Add(20 * time.Minute)
	require.NoError(t, f.service.Poll(context.Background(), f.target, later).Err)

	require.Len(t, f.store.staleBefore, 2)
	assert.Equal(t, later.Add(-15*time.Minute), f.store.staleBefore[1])
	assert.Equal(t, domain.StatusUnknown, f.store.onts["zyxel-1"]["1-1-1-2"].status)
	assert.Equal(t, domain.StatusUp, f.store.onts["zyxel-1"]["1-1-1-1"].status)
}

func TestPoll_HuaweiCompositeIdentifier(t *testing.T) {
	f := newPollFixture(t, domain.OLT{
		ID:           "huawei-1",
		Vendor:       domain.VendorHuawei,
		Host:         "10.0.0.2",
		PollInterval: time.Minute,
		Timeout:      5 * time.Second,
	})
	f.expectScan([]domain.RawRecord{
		{"frame/slot/port": "0/1/3", "onuIndex": "7", "Status": "losi", "RxPower": nil, "TxPower": 2.1},
	}, nil)

	result := f.service.Poll(context.Background(), f.target, cycleAt)
	require.NoError(t, result.Err)

	require.Contains(t, f.store.onts["huawei-1"], "0/1/3/7")
	require.Len(t, f.store.samples, 1)
	assert.False(t, f.store.samples[0].Rx.Valid)
	assert.Equal(t, domain.StatusDegraded, f.store.samples[0].Status)
}
