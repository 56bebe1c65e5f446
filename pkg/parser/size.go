package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var sizeTokenRE = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]*)\s*$`)

var decimalMultiplier = map[string]float64{
	"":   1,
	"b":  1,
	"kb": 1e3,
	"mb": 1e6,
	"gb": 1e9,
	"tb": 1e12,
	"pb": 1e15,
}

var binaryMultiplier = map[string]float64{
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
	"pib": 1 << 50,
}

// ParseSizeBytes parses a human size string into a byte count. Case
// insensitive. A unit string containing "i" is treated as a binary prefix
// (×1024^k); otherwise decimal (×1000^k). A bare number is bytes. An
// unrecognized unit is treated as bytes of the numeric portion. Invalid
// input yields 0.
func ParseSizeBytes(s string) int64 {
	m := sizeTokenRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	unit := strings.ToLower(m[2])
	if unit == "" {
		return int64(n)
	}

	if strings.Contains(unit, "i") {
		if mult, ok := binaryMultiplier[unit]; ok {
			return int64(n * mult)
		}
		return int64(n)
	}

	if mult, ok := decimalMultiplier[unit]; ok {
		return int64(n * mult)
	}
	return int64(n)
}
