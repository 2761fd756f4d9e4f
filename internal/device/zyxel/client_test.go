package zyxel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olt-collector/internal/domain"
	"olt-collector/internal/logger"
)

const statusTable = `
  AID              Status   SN                Template-ID        FW Version
  ---------------- -------- ----------------- ------------------ ---------------
  ont-1-1          IS       5A5958458CADA651  Template-1-121     V544ACHK1b1_20
  ont-1-2          OOS-LS   5A5958458CADA652  Template-1-121
  Total: 2
`

const opticsTable = `
  AID              ONT Rx     ONT Tx     OLT Rx     Temperature
  ---------------- ---------- ---------- ---------- -----------
  ont-1-1          -21.30     2.10       -23.00     41.5
  ont-1-9          -19.00     2.00       -20.00     40.0
`

type fakeSession struct {
	outputs  map[string]string
	commands []string
	closed   int
	err      error
}

func (f *fakeSession) Execute(command string) (string, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[command], nil
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func newTestClient(vendor domain.Vendor, sess *fakeSession) *Client {
	c := New(domain.OLT{ID: "zyxel-1", Vendor: vendor, Prompt: "OLT#"}, logger.NopAdapter())
	c.open = func(context.Context) (session, error) { return sess, nil }
	return c
}

func TestParseTable(t *testing.T) {
	records := parseTable(statusTable)
	require.Len(t, records, 2)

	assert.Equal(t, domain.RawRecord{
		"AID":         "ont-1-1",
		"Status":      "IS",
		"SN":          "5A5958458CADA651",
		"Template-ID": "Template-1-121",
		"FW Version":  "V544ACHK1b1_20",
	}, records[0])

	_, hasFW := records[1]["FW Version"]
	assert.False(t, hasFW, "blank cells are omitted")
}

func TestParseTable_MultibyteAtColumnEdge(t *testing.T) {
	table := "\n" +
		"  AID              Description Status\n" +
		"  ---------------- ----------- --------\n" +
		"  ont-1-1          Casa Paaaañ IS\n" +
		"  ont-1-2          São João    OOS-LS\n"

	records := parseTable(table)
	require.Len(t, records, 2)

	assert.Equal(t, "Casa Paaaañ", records[0]["Description"])
	assert.Equal(t, "IS", records[0]["Status"])
	assert.Equal(t, "São João", records[1]["Description"])
	assert.Equal(t, "OOS-LS", records[1]["Status"])
	for _, record := range records {
		for key, value := range record {
			assert.True(t, utf8.ValidString(value.(string)), key)
		}
	}
}

func TestParseTable_NoSeparator(t *testing.T) {
	assert.Empty(t, parseTable("% Unknown command.\n"))
	assert.Empty(t, parseTable(""))
}

func TestListEntities_FullTableJoinsOptics(t *testing.T) {
	sess := &fakeSession{outputs: map[string]string{
		StatusCommand: statusTable,
		OpticsCommand: opticsTable,
	}}
	c := newTestClient(domain.VendorZyxel1408A, sess)

	require.NoError(t, c.Connect(context.Background()))
	records, err := c.ListEntities(context.Background(), []string{"ignored"})
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(context.Background()))

	assert.Equal(t, []string{StatusCommand, OpticsCommand}, sess.commands)
	require.Len(t, records, 2)
	assert.Equal(t, "-21.30", records[0]["ONT Rx"])
	assert.Equal(t, "2.10", records[0]["ONT Tx"])
	assert.NotContains(t, records[1], "ONT Rx")
	assert.Equal(t, 1, sess.closed)
}

func TestListEntities_1240XAScansPerSelector(t *testing.T) {
	sess := &fakeSession{outputs: map[string]string{
		"show remote ont 1-1":      statusTable,
		"show remote ont 1-1 ddmi": opticsTable,
		"show remote ont 1-2":      strings.ReplaceAll(statusTable, "ont-1-", "ont-2-"),
		"show remote ont 1-2 ddmi": "",
	}}
	c := newTestClient(domain.VendorZyxel1240XA, sess)

	require.NoError(t, c.Connect(context.Background()))
	records, err := c.ListEntities(context.Background(), []string{"1-1", "1-2"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"show remote ont 1-1",
		"show remote ont 1-1 ddmi",
		"show remote ont 1-2",
		"show remote ont 1-2 ddmi",
	}, sess.commands)
	assert.Len(t, records, 4)
}

func TestListEntities_Busy(t *testing.T) {
	sess := &fakeSession{outputs: map[string]string{
		StatusCommand: "Error: another session is configuring the system",
	}}
	c := newTestClient(domain.VendorZyxel2406, sess)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.ListEntities(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceBusy)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}

func TestListEntities_SessionError(t *testing.T) {
	sess := &fakeSession{err: errors.New("expect: timer expired")}
	c := newTestClient(domain.VendorZyxel2406, sess)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.ListEntities(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.NotErrorIs(t, err, domain.ErrDeviceBusy)
}

func TestListEntities_NotConnected(t *testing.T) {
	c := newTestClient(domain.VendorZyxel1408A, &fakeSession{})

	_, err := c.ListEntities(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}

func TestListEntities_CancelledContext(t *testing.T) {
	sess := &fakeSession{outputs: map[string]string{StatusCommand: statusTable}}
	c := newTestClient(domain.VendorZyxel1408A, sess)
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListEntities(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	assert.Empty(t, sess.commands)
}

func TestCleanOutput(t *testing.T) {
	output := "show remote ont\r\n  AID\r\nOLT#"
	cleaned := cleanOutput(output, "show remote ont", promptPattern("OLT#"))
	assert.NotContains(t, cleaned, "OLT#")
	assert.Contains(t, cleaned, "AID")
}
