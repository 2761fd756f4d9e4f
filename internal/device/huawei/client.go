// Package huawei reads the ONT tables of Huawei OLTs over SNMP.
package huawei

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"olt-collector/internal/domain"
)

// walker is the subset of gosnmp used by the client
type walker interface {
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
	Close() error
}

// Client walks the Huawei GPON tables. It always scans the full table.
type Client struct {
	olt  domain.OLT
	log  domain.Logger
	dial func(ctx context.Context) (walker, error)
	conn walker
}

// New creates a Huawei client. No I/O happens until Connect.
func New(olt domain.OLT, log domain.Logger) *Client {
	c := &Client{olt: olt, log: log}
	c.dial = c.dialSNMP
	return c
}

// Connect opens the SNMP socket
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: erro ao conectar via snmp em %s: %v", domain.ErrDeviceUnavailable, c.olt.SNMP.Host, err)
	}

	c.conn = conn
	return nil
}

// ListEntities walks every ONT column and folds them into one record per ONT.
// Selectors are ignored.
func (c *Client) ListEntities(ctx context.Context, _ []string) ([]domain.RawRecord, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("%w: sessão snmp não conectada", domain.ErrDeviceUnavailable)
	}

	table := newOntTable()

	columns := []struct {
		oid   string
		apply func(rec domain.RawRecord, pdu gosnmp.SnmpPDU)
	}{
		{OIDOntSerial, func(rec domain.RawRecord, pdu gosnmp.SnmpPDU) {
			if raw, ok := pdu.Value.([]byte); ok {
				rec[KeySerial] = decodeSerial(raw)
			}
		}},
		{OIDOntDescription, stringColumn(KeyDescription)},
		{OIDOntEquipmentID, stringColumn(KeyEquipmentID)},
		{OIDOntRunStatus, intColumn(KeyRunStatus)},
		{OIDOntLastDownCause, intColumn(KeyLastDownCause)},
		{OIDOntTxPower, powerColumn(KeyTxPower)},
		{OIDOntRxPower, powerColumn(KeyRxPower)},
	}

	for _, column := range columns {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}

		err := c.conn.BulkWalk(column.oid, func(pdu gosnmp.SnmpPDU) error {
			if rec := table.row(column.oid, pdu.Name); rec != nil {
				column.apply(rec, pdu)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: erro no walk snmp %s: %v", domain.ErrDeviceUnavailable, column.oid, err)
		}
	}

	records := table.records()
	for _, rec := range records {
		runStatus, _ := rec[KeyRunStatus].(int64)
		downCause, _ := rec[KeyLastDownCause].(int64)
		rec[KeyStatus] = statusToken(runStatus, downCause)
	}

	c.log.WithField("records", len(records)).Debug("Walk huawei concluído")

	return records, nil
}

// Disconnect closes the SNMP socket
func (c *Client) Disconnect(context.Context) error {
	if c.conn == nil {
		return nil
	}

	conn := c.conn
	c.conn = nil

	return conn.Close()
}

func (c *Client) dialSNMP(ctx context.Context) (walker, error) {
	version := gosnmp.Version2c
	if c.olt.SNMP.Version == "1" {
		version = gosnmp.Version1
	}

	snmp := &gosnmp.GoSNMP{
		Target:         c.olt.SNMP.Host,
		Port:           c.olt.SNMP.Port,
		Community:      c.olt.SNMP.Community,
		Version:        version,
		Timeout:        c.olt.Timeout,
		Retries:        1,
		MaxRepetitions: 50,
		Context:        ctx,
	}

	if err := snmp.Connect(); err != nil {
		return nil, err
	}

	return &snmpConn{snmp}, nil
}

type snmpConn struct {
	*gosnmp.GoSNMP
}

func (s *snmpConn) BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error {
	if s.Version == gosnmp.Version1 {
		return s.GoSNMP.Walk(rootOid, walkFn)
	}
	return s.GoSNMP.BulkWalk(rootOid, walkFn)
}

func (s *snmpConn) Close() error {
	return s.Conn.Close()
}

// ontTable groups walked cells by "<ifIndex>.<onuIndex>", preserving first-seen order
type ontTable struct {
	order []string
	rows  map[string]domain.RawRecord
}

func newOntTable() *ontTable {
	return &ontTable{rows: make(map[string]domain.RawRecord)}
}

func (t *ontTable) row(root, name string) domain.RawRecord {
	index, ok := strings.CutPrefix(strings.TrimPrefix(name, "."), root+".")
	if !ok {
		return nil
	}

	if rec, exists := t.rows[index]; exists {
		return rec
	}

	ifPart, onuPart, found := strings.Cut(index, ".")
	if !found {
		return nil
	}
	ifIndex, err := strconv.ParseUint(ifPart, 10, 64)
	if err != nil {
		return nil
	}
	onuIndex, err := strconv.ParseUint(onuPart, 10, 32)
	if err != nil {
		return nil
	}

	rec := domain.RawRecord{
		KeyIfIndex:  int64(ifIndex),
		KeyOnuIndex: int64(onuIndex),
		KeyPonPath:  ponPath(ifIndex),
	}
	t.rows[index] = rec
	t.order = append(t.order, index)

	return rec
}

func (t *ontTable) records() []domain.RawRecord {
	records := make([]domain.RawRecord, 0, len(t.order))
	for _, index := range t.order {
		records = append(records, t.rows[index])
	}
	return records
}

func stringColumn(key string) func(domain.RawRecord, gosnmp.SnmpPDU) {
	return func(rec domain.RawRecord, pdu gosnmp.SnmpPDU) {
		if raw, ok := pdu.Value.([]byte); ok {
			rec[key] = strings.TrimSpace(string(raw))
		}
	}
}

func intColumn(key string) func(domain.RawRecord, gosnmp.SnmpPDU) {
	return func(rec domain.RawRecord, pdu gosnmp.SnmpPDU) {
		rec[key] = gosnmp.ToBigInt(pdu.Value).Int64()
	}
}

func powerColumn(key string) func(domain.RawRecord, gosnmp.SnmpPDU) {
	return func(rec domain.RawRecord, pdu gosnmp.SnmpPDU) {
		rec[key] = opticalPower(gosnmp.ToBigInt(pdu.Value).Int64())
	}
}
