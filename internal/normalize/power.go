package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"olt-collector/internal/domain"
)

// powerPattern accepts a bare number with an optional dB/dBm suffix
var powerPattern = regexp.MustCompile(`(?i)^([-+]?(?:\d+(?:\.\d*)?|\.\d+))\s*(?:dbm|db)?$`)

// ParsePower converts a raw power field into a PowerValue. Anything that is
// not a finite number (nil, "", "N/A", "--", garbage) yields an absent value.
func ParsePower(raw any) domain.PowerValue {
	switch v := raw.(type) {
	case nil:
		return domain.PowerValue{}
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return finite(float64(v))
	case int32:
		return finite(float64(v))
	case int64:
		return finite(float64(v))
	case *float64:
		if v == nil {
			return domain.PowerValue{}
		}
		return finite(*v)
	case []byte:
		return parsePowerString(string(v))
	case string:
		return parsePowerString(v)
	case fmt.Stringer:
		return parsePowerString(v.String())
	default:
		return domain.PowerValue{}
	}
}

func parsePowerString(s string) domain.PowerValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.PowerValue{}
	}

	matches := powerPattern.FindStringSubmatch(s)
	if len(matches) < 2 {
		return domain.PowerValue{}
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return domain.PowerValue{}
	}

	return finite(value)
}

func finite(v float64) domain.PowerValue {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.PowerValue{}
	}
	return domain.PowerValue{Value: v, Valid: true}
}
