package findings

import (
	"errors"
	"fmt"
)

var (
	validSeverities = map[Severity]struct{}{
		SeverityInfo: {}, SeverityWarning: {}, SeverityError: {}, SeverityCritical: {},
	}
	validImpacts = map[Impact]struct{}{
		ImpactLow: {}, ImpactMedium: {}, ImpactHigh: {},
	}
)

// Validate checks that the finding has required fields and an allowed severity.
// Line is optional but must not be negative.
func (f *Finding) Validate() error {
	if f == nil {
		return errors.New("finding is nil")
	}
	if f.File == "" {
		return errors.New("file is required")
	}
	if f.Severity == "" {
		return errors.New("severity is required")
	}
	if _, ok := validSeverities[f.Severity]; !ok {
		return fmt.Errorf("invalid severity %q", f.Severity)
	}
	if f.Description == "" {
		return errors.New("description is required")
	}
	if f.Line < 0 {
		return fmt.Errorf("line %d must not be negative", f.Line)
	}
	return nil
}

// Validate checks a proposed change: file and proposed code are required,
// impact must be known, and the line span must be ordered.
func (c *ProposedChange) Validate() error {
	if c == nil {
		return errors.New("proposed change is nil")
	}
	if c.File == "" {
		return errors.New("file is required")
	}
	if _, ok := validImpacts[c.Impact]; !ok {
		return fmt.Errorf("invalid impact %q", c.Impact)
	}
	if c.LineStart < 0 || c.LineEnd < c.LineStart {
		return fmt.Errorf("line range %d-%d is invalid", c.LineStart, c.LineEnd)
	}
	if c.ProposedCode == "" {
		return errors.New("proposed_code is required")
	}
	return nil
}
