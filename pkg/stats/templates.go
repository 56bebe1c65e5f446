package stats

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var tokenRE = regexp.MustCompile(`\d+(?:\.\d+){0,3}`)

// template replaces every IP-like or numeric token in an error reason with
// "#", producing a grouping key shared by similar errors.
func template(reason string) string {
	return tokenRE.ReplaceAllString(reason, "#")
}

// templateTracker accumulates per-template occurrence info: distinct
// addresses seen and the numeric range observed across substitutions.
type templateTracker struct {
	counts    map[string]int
	addresses map[string]map[string]bool
	numRange  map[string][2]float64
}

func newTemplateTracker() *templateTracker {
	return &templateTracker{
		counts:    make(map[string]int),
		addresses: make(map[string]map[string]bool),
		numRange:  make(map[string][2]float64),
	}
}

func (t *templateTracker) observe(reason string) {
	key := template(reason)
	t.counts[key]++

	tokens := tokenRE.FindAllString(reason, -1)
	for _, tok := range tokens {
		if strings.Contains(tok, ".") && strings.Count(tok, ".") == 3 {
			if t.addresses[key] == nil {
				t.addresses[key] = make(map[string]bool)
			}
			t.addresses[key][tok] = true
			continue
		}
		var n float64
		if _, err := fmt.Sscanf(tok, "%g", &n); err == nil {
			r, ok := t.numRange[key]
			if !ok {
				t.numRange[key] = [2]float64{n, n}
			} else if n < r[0] || n > r[1] {
				if n < r[0] {
					r[0] = n
				}
				if n > r[1] {
					r[1] = n
				}
				t.numRange[key] = r
			}
		}
	}
}

// TopTemplate is one rendered entry in the top-error-templates list.
type TopTemplate struct {
	Template string `json:"template"`
	Count    int    `json:"count"`
	Detail   string `json:"detail"`
}

// Top renders the n highest-count templates, formatting each with its
// address-set or numeric-range detail.
func (t *templateTracker) Top(n int) []TopTemplate {
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return t.counts[keys[i]] > t.counts[keys[j]] })

	if len(keys) > n {
		keys = keys[:n]
	}

	out := make([]TopTemplate, 0, len(keys))
	for _, k := range keys {
		detail := ""
		if addrs, ok := t.addresses[k]; ok && len(addrs) > 0 {
			detail = fmt.Sprintf("[%d unique addresses]", len(addrs))
		} else if r, ok := t.numRange[k]; ok {
			detail = fmt.Sprintf("(%v..%v)", r[0], r[1])
		}
		out = append(out, TopTemplate{Template: k, Count: t.counts[k], Detail: detail})
	}
	return out
}
