package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"olt-collector/internal/domain"
)

// Normalizer turns one vendor raw record into the canonical reading
type Normalizer interface {
	Vendor() domain.Vendor
	Normalize(raw domain.RawRecord) (domain.NormalizedReading, error)
}

// fieldMap names the raw keys a family uses. Every list is tried in order
// and the first present, non-empty key wins.
type fieldMap struct {
	identifier  func(domain.RawRecord) (string, bool)
	status      []string
	tx          []string
	rx          []string
	serial      []string
	model       []string
	description []string
}

var zyxelFields = fieldMap{
	identifier:  singleKey("AID"),
	status:      []string{"Status", "State"},
	tx:          []string{"ONT Tx", "Tx Power", "TxPower"},
	rx:          []string{"ONT Rx", "Rx Power", "RxPower"},
	serial:      []string{"SN", "Serial"},
	model:       []string{"Model", "Model Name", "Equipment ID"},
	description: []string{"Description", "Desc", "Template-Description"},
}

var huaweiFields = fieldMap{
	identifier:  compositeKey("frame/slot/port", "onuIndex"),
	status:      []string{"Status"},
	tx:          []string{"TxPower"},
	rx:          []string{"RxPower"},
	serial:      []string{"SN"},
	model:       []string{"EquipmentID", "Model"},
	description: []string{"Desc", "Description"},
}

var fiberhomeFields = fieldMap{
	identifier:  compositeKey("PONID", "ONUNO"),
	status:      []string{"OPERSTATE", "STATE"},
	tx:          []string{"TXPOWER"},
	rx:          []string{"RXPOWER"},
	serial:      []string{"MAC", "LOID", "SN"},
	model:       []string{"ONUTYPE"},
	description: []string{"NAME", "DESC"},
}

type recordNormalizer struct {
	vendor domain.Vendor
	table  *StatusTable
	fields fieldMap
}

// ForVendor returns the normalizer of a vendor family
func ForVendor(vendor domain.Vendor, table *StatusTable) (Normalizer, error) {
	var fields fieldMap

	switch {
	case vendor.IsZyxel():
		fields = zyxelFields
	case vendor == domain.VendorHuawei:
		fields = huaweiFields
	case vendor == domain.VendorFiberHome:
		fields = fiberhomeFields
	default:
		return nil, fmt.Errorf("%w: nenhum normalizador para o vendor %q", domain.ErrConfig, vendor)
	}

	return &recordNormalizer{vendor: vendor, table: table, fields: fields}, nil
}

func (n *recordNormalizer) Vendor() domain.Vendor {
	return n.vendor
}

func (n *recordNormalizer) Normalize(raw domain.RawRecord) (domain.NormalizedReading, error) {
	id, ok := n.fields.identifier(raw)
	if !ok {
		return domain.NormalizedReading{}, fmt.Errorf("%w: registro %s sem identificador", domain.ErrNormalization, n.vendor)
	}

	return domain.NormalizedReading{
		VendorOntID: id,
		Tx:          ParsePower(firstValue(raw, n.fields.tx...)),
		Rx:          ParsePower(firstValue(raw, n.fields.rx...)),
		Status:      n.table.Normalize(n.vendor, firstValue(raw, n.fields.status...)),
		Serial:      firstString(raw, n.fields.serial...),
		Model:       firstString(raw, n.fields.model...),
		Description: firstString(raw, n.fields.description...),
		Metadata:    metadata(raw),
	}, nil
}

// Batch is the outcome of normalizing one scan
type Batch struct {
	Readings []domain.NormalizedReading
	// Dropped counts records without a derivable identifier
	Dropped int
	// Duplicates counts records superseded by a later one with the same identifier
	Duplicates int
	// Anomalies holds the error of every dropped record
	Anomalies []error
}

// NormalizeBatch normalizes a whole scan. Readings keep first-seen order and
// a repeated identifier replaces the earlier reading (last seen wins).
func NormalizeBatch(n Normalizer, records []domain.RawRecord) Batch {
	batch := Batch{Readings: make([]domain.NormalizedReading, 0, len(records))}
	index := make(map[string]int, len(records))

	for _, raw := range records {
		reading, err := n.Normalize(raw)
		if err != nil {
			batch.Dropped++
			batch.Anomalies = append(batch.Anomalies, err)
			continue
		}

		if i, seen := index[reading.VendorOntID]; seen {
			batch.Readings[i] = reading
			batch.Duplicates++
			continue
		}

		index[reading.VendorOntID] = len(batch.Readings)
		batch.Readings = append(batch.Readings, reading)
	}

	return batch
}

func singleKey(key string) func(domain.RawRecord) (string, bool) {
	return func(raw domain.RawRecord) (string, bool) {
		value := firstString(raw, key)
		if value == nil {
			return "", false
		}
		return *value, true
	}
}

func compositeKey(keys ...string) func(domain.RawRecord) (string, bool) {
	return func(raw domain.RawRecord) (string, bool) {
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			value := firstString(raw, key)
			if value == nil {
				return "", false
			}
			parts = append(parts, *value)
		}
		return strings.Join(parts, "/"), true
	}
}

// firstValue returns the value of the first key that is present and not blank
func firstValue(raw domain.RawRecord, keys ...string) any {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value
	}
	return nil
}

func firstString(raw domain.RawRecord, keys ...string) *string {
	value := firstValue(raw, keys...)
	if value == nil {
		return nil
	}

	s := strings.TrimSpace(strings.ToValidUTF8(fmt.Sprint(value), ""))
	if s == "" {
		return nil
	}
	return &s
}

// metadata serializes the raw bag. Values encoding/json rejects are kept
// in their fmt form.
func metadata(raw domain.RawRecord) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}

	if data, err := json.Marshal(raw); err == nil {
		return data
	}

	safe := make(map[string]any, len(raw))
	for key, value := range raw {
		if _, err := json.Marshal(value); err != nil {
			safe[key] = fmt.Sprint(value)
			continue
		}
		safe[key] = value
	}

	data, err := json.Marshal(safe)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
