package huawei

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Huawei GPON MIB, indexed by <ifIndex>.<onuIndex>
const (
	OIDOntSerial        = "1.3.6.1.4.1.2011.6.128.1.1.2.43.1.3"
	OIDOntDescription   = "1.3.6.1.4.1.2011.6.128.1.1.2.43.1.9"
	OIDOntEquipmentID   = "1.3.6.1.4.1.2011.6.128.1.1.2.45.1.4"
	OIDOntRunStatus     = "1.3.6.1.4.1.2011.6.128.1.1.2.46.1.15"
	OIDOntLastDownCause = "1.3.6.1.4.1.2011.6.128.1.1.2.46.1.24"
	OIDOntTxPower       = "1.3.6.1.4.1.2011.6.128.1.1.2.51.1.3" // value * 0.01 dBm
	OIDOntRxPower       = "1.3.6.1.4.1.2011.6.128.1.1.2.51.1.4" // value * 0.01 dBm

	// InvalidValue is reported for readings of offline ONTs
	InvalidValue int64 = 2147483647

	// gponIfIndexBase is the ifIndex of frame 0, slot 0, port 0
	gponIfIndexBase = 0xFA000000
)

const (
	runStatusOnline = 1

	downCauseLOS       = 1
	downCauseLOSi      = 2
	downCauseDyingGasp = 13
)

// Raw record keys
const (
	KeyIfIndex       = "ifIndex"
	KeyOnuIndex      = "onuIndex"
	KeyPonPath       = "frame/slot/port"
	KeySerial        = "SN"
	KeyDescription   = "Desc"
	KeyEquipmentID   = "EquipmentID"
	KeyStatus        = "Status"
	KeyRunStatus     = "RunStatus"
	KeyLastDownCause = "LastDownCause"
	KeyTxPower       = "TxPower"
	KeyRxPower       = "RxPower"
)

// ponPath decodes a GPON port ifIndex into "frame/slot/port". Indexes outside
// the GPON range are returned as-is.
func ponPath(ifIndex uint64) string {
	if ifIndex < gponIfIndexBase {
		return strconv.FormatUint(ifIndex, 10)
	}

	rem := ifIndex - gponIfIndexBase
	frame := rem >> 18
	slot := (rem >> 13) & 0x1F
	port := (rem >> 8) & 0x1F

	return strconv.FormatUint(frame, 10) + "/" + strconv.FormatUint(slot, 10) + "/" + strconv.FormatUint(port, 10)
}

// opticalPower converts a raw reading to dBm, nil when the ONT reports none
func opticalPower(raw int64) any {
	if raw == InvalidValue {
		return nil
	}
	return float64(raw) * 0.01
}

// statusToken derives the status word from the run status and last down cause
func statusToken(runStatus, lastDownCause int64) string {
	if runStatus == runStatusOnline {
		return "online"
	}

	switch lastDownCause {
	case downCauseLOS, downCauseLOSi:
		return "losi"
	case downCauseDyingGasp:
		return "dyinggasp"
	default:
		return "offline"
	}
}

// decodeSerial renders the 8 byte GPON serial as vendor id plus hex,
// e.g. "HWTC0011D168"
func decodeSerial(raw []byte) string {
	if len(raw) != 8 {
		return strings.TrimSpace(string(raw))
	}

	vendor := raw[:4]
	for _, b := range vendor {
		if b < 'A' || b > 'Z' {
			return strings.ToUpper(hex.EncodeToString(raw))
		}
	}

	return string(vendor) + strings.ToUpper(hex.EncodeToString(raw[4:]))
}
