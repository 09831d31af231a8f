package findings

import "sort"

// Histogram counts findings per severity.
type Histogram struct {
	Critical int `json:"critical"`
	Error    int `json:"error"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Total returns the number of counted findings.
func (h Histogram) Total() int {
	return h.Critical + h.Error + h.Warning + h.Info
}

// Get returns the count for s; unknown severities return 0.
func (h Histogram) Get(s Severity) int {
	switch s {
	case SeverityCritical:
		return h.Critical
	case SeverityError:
		return h.Error
	case SeverityWarning:
		return h.Warning
	case SeverityInfo:
		return h.Info
	}
	return 0
}

// Count builds a severity histogram. Findings with an unknown severity are not counted.
func Count(list []Finding) Histogram {
	var h Histogram
	for _, f := range list {
		switch f.Severity {
		case SeverityCritical:
			h.Critical++
		case SeverityError:
			h.Error++
		case SeverityWarning:
			h.Warning++
		case SeverityInfo:
			h.Info++
		}
	}
	return h
}

// MostSevere returns up to n findings ordered by severity (most severe first).
// Equal severities keep their original order. The input is not modified.
func MostSevere(list []Finding, n int) []Finding {
	out := make([]Finding, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
