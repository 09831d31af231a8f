package definition

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var workflowIDRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// validate is the shared validator instance; it is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("workflowid", func(fl validator.FieldLevel) bool {
		return workflowIDRe.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks the definition against the schema tags and then the rules
// tags cannot express: checklist ids are unique, a validation item is last
// when present, and every regex compiles.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("workflow %q: %w", d.Type, err)
	}
	seen := make(map[string]struct{}, len(d.PerFileChecklist))
	for i, item := range d.PerFileChecklist {
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("workflow %q: duplicate checklist id %q", d.Type, item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Type == ItemValidation && i != len(d.PerFileChecklist)-1 {
			return fmt.Errorf("workflow %q: validation item %q must be last in per_file_checklist", d.Type, item.ID)
		}
	}
	phaseIDs := make(map[string]struct{}, len(d.Phases))
	for _, p := range d.Phases {
		if _, dup := phaseIDs[p.ID]; dup {
			return fmt.Errorf("workflow %q: duplicate phase id %q", d.Type, p.ID)
		}
		phaseIDs[p.ID] = struct{}{}
	}
	if d.PatternDiscovery != nil {
		for _, p := range d.PatternDiscovery.Patterns {
			if err := p.compileCheck(); err != nil {
				return fmt.Errorf("workflow %q: %w", d.Type, err)
			}
		}
	}
	return nil
}

func (p PatternDefinition) compileCheck() error {
	if _, err := CompileRegex(p.Regex, p.Flags); err != nil {
		return fmt.Errorf("pattern %q: %w", p.ID, err)
	}
	if p.Exclude != "" {
		if _, err := regexp.Compile(p.Exclude); err != nil {
			return fmt.Errorf("pattern %q exclude: %w", p.ID, err)
		}
	}
	for i, c := range p.Classifiers {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("pattern %q classifier %d: %w", p.ID, i, err)
		}
	}
	return nil
}

// CompileRegex compiles expr with flags (any of i, m, s) applied as an inline
// flag group, so "Error\(" with "i" becomes "(?i)Error\(".
func CompileRegex(expr, flags string) (*regexp.Regexp, error) {
	for _, f := range flags {
		if f != 'i' && f != 'm' && f != 's' {
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	return regexp.Compile(expr)
}
