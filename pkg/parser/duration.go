package parser

import (
	"regexp"
	"strconv"
)

// durationTokenRE matches one (number, unit) pair. Units are ordered so the
// longer "ms" is tried before the single-character "m" — otherwise "500ms"
// would split into "500m" + "s".
var durationTokenRE = regexp.MustCompile(`(\d+(?:\.\d+)?)(h|ms|m|s)`)

var unitSeconds = map[string]float64{
	"h":  3600,
	"m":  60,
	"s":  1,
	"ms": 0.001,
}

// ParseDurationSeconds parses strings of the form "(<num><unit>)+" built
// from units h, m, s, ms into a seconds value. A string with no recognized
// tokens falls back to being parsed as a bare number of seconds; a string
// that is neither yields (0, false).
func ParseDurationSeconds(s string) (float64, bool) {
	matches := durationTokenRE.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	var total float64
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		total += n * unitSeconds[m[2]]
	}
	return total, true
}
