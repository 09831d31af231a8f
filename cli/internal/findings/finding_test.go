package findings

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFinding_JSONFieldNames(t *testing.T) {
	t.Parallel()
	f := Finding{
		File:         "src/Sales.codeunit.al",
		Line:         42,
		Severity:     SeverityCritical,
		Category:     CategorySecurity,
		Description:  "permission check missing",
		Suggestion:   "add Permissions property",
		RelatedTopic: "permission-sets",
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"file"`, `"line"`, `"severity":"critical"`, `"description"`, `"suggestion"`, `"related_topic"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON %s missing %s", data, key)
		}
	}
}

func TestFinding_omitsOptional(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(Finding{File: "a.al", Severity: SeverityInfo, Category: "general", Description: "d"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"line"`, `"suggestion"`, `"related_topic"`} {
		if strings.Contains(string(data), key) {
			t.Errorf("JSON %s should omit %s", data, key)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	t.Parallel()
	order := []Severity{SeverityCritical, SeverityError, SeverityWarning, SeverityInfo, "bogus"}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() <= order[i].Rank() {
			t.Errorf("Rank(%q)=%d should exceed Rank(%q)=%d", order[i-1], order[i-1].Rank(), order[i], order[i].Rank())
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	f := Finding{File: " a.al ", Severity: " WARNING ", Description: "d"}
	f.Normalize()
	if f.Severity != SeverityWarning || f.Category != CategoryGeneral || f.File != "a.al" {
		t.Errorf("Normalize() = %+v", f)
	}
	c := ProposedChange{File: "a.al", LineStart: 7, ProposedCode: "x"}
	c.Normalize()
	if c.Impact != ImpactLow || c.LineEnd != 7 {
		t.Errorf("ProposedChange.Normalize() = %+v", c)
	}
}
