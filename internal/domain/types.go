// internal/domain/types.go
package domain

import (
	"encoding/json"
	"time"
)

// Vendor identifies a device family. The set is closed: every value
// must have a device client and a record normalizer.
type Vendor string

const (
	VendorZyxel1408A  Vendor = "zyxel1408A"
	VendorZyxel2406   Vendor = "zyxel2406"
	VendorZyxel1240XA Vendor = "zyxel1240XA"
	VendorHuawei      Vendor = "huawei"
	VendorFiberHome   Vendor = "fiberhome"
)

// Vendors lists every supported device family
var Vendors = []Vendor{
	VendorZyxel1408A,
	VendorZyxel2406,
	VendorZyxel1240XA,
	VendorHuawei,
	VendorFiberHome,
}

// Valid reports whether v belongs to the supported vendor set
func (v Vendor) Valid() bool {
	for _, known := range Vendors {
		if v == known {
			return true
		}
	}
	return false
}

// IsZyxel reports whether v is one of the Zyxel CLI families
func (v Vendor) IsZyxel() bool {
	return v == VendorZyxel1408A || v == VendorZyxel2406 || v == VendorZyxel1240XA
}

// StatusCode is the canonical ONT status
type StatusCode int16

const (
	StatusDown     StatusCode = 0
	StatusUp       StatusCode = 1
	StatusDegraded StatusCode = 2
	StatusNoPower  StatusCode = 3
	StatusUnknown  StatusCode = 98
	StatusPending  StatusCode = 99
)

// Valid reports whether c is one of the canonical codes
func (c StatusCode) Valid() bool {
	switch c {
	case StatusDown, StatusUp, StatusDegraded, StatusNoPower, StatusUnknown, StatusPending:
		return true
	}
	return false
}

// SNMPSettings holds the SNMP extras used by SNMP based families
type SNMPSettings struct {
	Community string
	Host      string
	Port      uint16
	Version   string
}

// OLT is a configured line terminal
type OLT struct {
	ID            string
	Vendor        Vendor
	Host          string
	Port          int
	Username      string
	Password      string
	PollInterval  time.Duration
	Prompt        string
	Description   string
	Timeout       time.Duration
	Debug         bool
	SNMP          SNMPSettings
	ScanSelectors []string

	// UNMOltID is the OLT address registered in the FiberHome UNM server
	UNMOltID string
}

// RawRecord is the vendor specific attribute bag returned by a device client.
// It must not travel past the record normalizer.
type RawRecord map[string]any

// PowerValue is an optical power reading in dBm. Value is 0 when the
// device reported nothing; Valid tells the two cases apart.
type PowerValue struct {
	Value float64
	Valid bool
}

// Ptr returns nil for absent readings
func (p PowerValue) Ptr() *float64 {
	if !p.Valid {
		return nil
	}
	v := p.Value
	return &v
}

// NormalizedReading is the canonical form of one ONT observation
type NormalizedReading struct {
	VendorOntID string
	Tx          PowerValue
	Rx          PowerValue
	Status      StatusCode
	Serial      *string
	Model       *string
	Description *string
	Metadata    json.RawMessage
}

// PowerSample is one immutable row of the power time series
type PowerSample struct {
	Time   time.Time
	OntID  int64
	Tx     PowerValue
	Rx     PowerValue
	Status StatusCode
}

// CycleResult summarizes a single poll of one OLT
type CycleResult struct {
	CycleID        string
	OltID          string
	Vendor         Vendor
	StartedAt      time.Time
	Duration       time.Duration
	Records        int
	Dropped        int
	Unresolved     int
	EntitiesStored int
	SamplesWritten int64
	Err            error
}

// Succeeded reports whether the cycle completed without error
func (r CycleResult) Succeeded() bool {
	return r.Err == nil
}
