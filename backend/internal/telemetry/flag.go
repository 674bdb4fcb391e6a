package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type flagKind int

const (
	flagOther flagKind = iota
	flagNull
	flagBool
	flagNumber
	flagString
)

func classifyFlag(raw json.RawMessage) flagKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return flagOther
	}

	switch c := raw[0]; {
	case c == 'n':
		return flagNull
	case c == 't' || c == 'f':
		return flagBool
	case c == '"':
		return flagString
	case c == '-' || (c >= '0' && c <= '9'):
		return flagNumber
	default:
		return flagOther
	}
}

// CoerceFlag maps the JSON encodings devices use for the fan flag to a bool:
// true, a number whose integer part is 1 and the strings "true" (any case) or "1"
// are on; everything else is off.
func CoerceFlag(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)

	switch classifyFlag(raw) {
	case flagBool:
		return string(raw) == "true"
	case flagNumber:
		f, err := strconv.ParseFloat(string(raw), 64)
		return err == nil && math.Trunc(f) == 1
	case flagString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}

		return s == "1" || strings.EqualFold(s, "true")
	case flagNull, flagOther:
		return false
	default:
		return false
	}
}
