package findings

import "testing"

func TestFindingValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		f       *Finding
		wantErr bool
	}{
		{"valid", &Finding{File: "a.al", Severity: SeverityError, Description: "d"}, false},
		{"file-level", &Finding{File: "a.al", Severity: SeverityInfo, Description: "d", Line: 0}, false},
		{"nil", nil, true},
		{"no file", &Finding{Severity: SeverityError, Description: "d"}, true},
		{"no severity", &Finding{File: "a.al", Description: "d"}, true},
		{"bad severity", &Finding{File: "a.al", Severity: "nitpick", Description: "d"}, true},
		{"no description", &Finding{File: "a.al", Severity: SeverityInfo}, true},
		{"negative line", &Finding{File: "a.al", Severity: SeverityInfo, Description: "d", Line: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProposedChangeValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		c       *ProposedChange
		wantErr bool
	}{
		{"valid", &ProposedChange{File: "a.al", LineStart: 1, LineEnd: 2, ProposedCode: "x", Impact: ImpactMedium}, false},
		{"nil", nil, true},
		{"bad impact", &ProposedChange{File: "a.al", LineStart: 1, LineEnd: 1, ProposedCode: "x", Impact: "huge"}, true},
		{"inverted range", &ProposedChange{File: "a.al", LineStart: 5, LineEnd: 2, ProposedCode: "x", Impact: ImpactLow}, true},
		{"no code", &ProposedChange{File: "a.al", LineStart: 1, LineEnd: 1, Impact: ImpactLow}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
