package extract

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// Characters inspected after the first '%' by the text-window strategy.
	windowAfter = 40

	// Characters after a matched percent that may hold the "of <size>" part.
	sizeWindow = 32
)

var (
	percentOfSizeRe = regexp.MustCompile(`(?i)(\d+)\s*%\s*of\s+(\d[\d.,]*\s*[KMGT]B)\b`)
	percentRe       = regexp.MustCompile(`(\d+)\s*%`)
	sizeRe          = regexp.MustCompile(`(?i)\bof\s+(\d[\d.,]*\s*[KMGT]B)\b`)

	labelAttrRe = regexp.MustCompile(`\b(?:text|content-desc)="([^"]*)"`)
	elementRe   = regexp.MustCompile(`<[^<>]+>`)
	progressRe  = regexp.MustCompile(`\bprogress\s*=\s*"?(\d+(?:\.\d+)?)"?`)
	maxRe       = regexp.MustCompile(`\bmax\s*=\s*"?(-?\d+(?:\.\d+)?)"?`)

	spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2007", " ")
)

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "percent-of-size", Match: matchPercentOfSize},
		{Name: "percent-only", Match: matchPercentOnly},
		{Name: "progress-widget", Match: matchProgressWidget},
		{Name: "text-window", Match: matchTextWindow},
	}
}

// matchPercentOfSize finds a label such as "47% of 84.9 MB".
func matchPercentOfSize(snapshot string) (Reading, bool) {
	for _, label := range labels(snapshot) {
		for _, m := range percentOfSizeRe.FindAllStringSubmatch(label, -1) {
			pct, ok := parsePercent(m[1])
			if !ok {
				continue
			}
			return Reading{Percent: intPtr(pct), Size: normalizeSize(m[2])}, true
		}
	}
	return Reading{}, false
}

// matchPercentOnly finds a label holding a bare "<n>%".
func matchPercentOnly(snapshot string) (Reading, bool) {
	for _, label := range labels(snapshot) {
		for _, m := range percentRe.FindAllStringSubmatch(label, -1) {
			if pct, ok := parsePercent(m[1]); ok {
				return Reading{Percent: intPtr(pct)}, true
			}
		}
	}
	return Reading{}, false
}

// matchProgressWidget reads raw progress/max attributes off a progress
// indicator element (XML) or line (flat dumps).
func matchProgressWidget(snapshot string) (Reading, bool) {
	for _, unit := range elements(snapshot) {
		pm := progressRe.FindStringSubmatch(unit)
		if pm == nil {
			continue
		}
		progress, err := strconv.ParseFloat(pm[1], 64)
		if err != nil {
			continue
		}
		limit := 100.0
		if mm := maxRe.FindStringSubmatch(unit); mm != nil {
			v, err := strconv.ParseFloat(mm[1], 64)
			if err != nil {
				continue
			}
			limit = v
		}
		return Reading{Percent: intPtr(widgetPercent(progress, limit))}, true
	}
	return Reading{}, false
}

// widgetPercent computes floor(progress*100/limit) clamped to [0,100]. A
// widget reporting a non-positive max has no measurable progress and reads
// as 0.
func widgetPercent(progress, limit float64) int {
	if limit <= 0 {
		return 0
	}
	pct := int(math.Floor(progress * 100 / limit))
	return min(max(pct, 0), 100)
}

// matchTextWindow scans the raw snapshot, restricted to a window around the
// first '%' so unrelated numbers elsewhere are never picked up.
func matchTextWindow(snapshot string) (Reading, bool) {
	idx := strings.Index(snapshot, "%")
	if idx < 0 {
		return Reading{}, false
	}

	end := idx
	for end > 0 && isBlank(snapshot[end-1]) {
		end--
	}
	start := end
	for start > 0 && snapshot[start-1] >= '0' && snapshot[start-1] <= '9' {
		start--
	}
	pct, ok := parsePercent(snapshot[start:end])
	if !ok {
		return Reading{}, false
	}

	after := snapshot[idx+1 : min(len(snapshot), idx+1+windowAfter)]
	return Reading{Percent: intPtr(pct), Size: sizeAfter(spaceReplacer.Replace(after))}, true
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t'
}

// sizeAfter looks for "of <size>" within sizeWindow characters of the text
// following a percent.
func sizeAfter(rest string) string {
	if len(rest) > sizeWindow {
		rest = rest[:sizeWindow]
	}
	if m := sizeRe.FindStringSubmatch(rest); m != nil {
		return normalizeSize(m[1])
	}
	return ""
}

// labels returns the human-visible strings of a snapshot: text and
// content-desc attribute values for XML hierarchies, lines otherwise.
func labels(snapshot string) []string {
	var out []string
	if isHierarchy(snapshot) {
		for _, m := range labelAttrRe.FindAllStringSubmatch(snapshot, -1) {
			if m[1] == "" {
				continue
			}
			out = append(out, spaceReplacer.Replace(html.UnescapeString(m[1])))
		}
		return out
	}
	for _, line := range strings.Split(snapshot, "\n") {
		line = strings.TrimSpace(spaceReplacer.Replace(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// elements splits a snapshot into per-widget units: XML tags or lines.
func elements(snapshot string) []string {
	if isHierarchy(snapshot) {
		return elementRe.FindAllString(snapshot, -1)
	}
	return strings.Split(snapshot, "\n")
}

func isHierarchy(snapshot string) bool {
	s := strings.TrimSpace(snapshot)
	return strings.HasPrefix(s, "<?xml") || strings.HasPrefix(s, "<hierarchy") || strings.Contains(s, "<node ")
}

func parsePercent(digits string) (int, bool) {
	if len(digits) > 3 {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}

func normalizeSize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
