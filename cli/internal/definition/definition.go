// Package definition is the workflow definition registry: static, per-type
// metadata (file patterns, phases, per-file checklist template, optional
// pattern-discovery rules, topic threshold, completion rules) loaded from YAML
// and validated once at registration time.
package definition

// Checklist item types. PatternInstance items are generated by the scanner
// and are not allowed in a definition's per-file template.
const (
	ItemAnalysis         = "analysis"
	ItemTopicApplication = "topic_application"
	ItemPatternInstance  = "pattern_instance"
	ItemValidation       = "validation"
	ItemCustom           = "custom"
)

// Phase modes.
const (
	ModeAutonomous  = "autonomous"
	ModeGuided      = "guided"
	ModeAgentDriven = "agent_driven"
)

// Definition describes one workflow type.
type Definition struct {
	Type             string              `yaml:"type" json:"type" validate:"required,workflowid"`
	Name             string              `yaml:"name" json:"name" validate:"required"`
	Description      string              `yaml:"description,omitempty" json:"description,omitempty"`
	FilePatterns     []string            `yaml:"file_patterns" json:"file_patterns" validate:"required,min=1,dive,required"`
	FileExclusions   []string            `yaml:"file_exclusions,omitempty" json:"file_exclusions,omitempty" validate:"dive,required"`
	PriorityPatterns []string            `yaml:"priority_patterns,omitempty" json:"priority_patterns,omitempty"`
	Phases           []Phase             `yaml:"phases" json:"phases" validate:"required,min=1,dive"`
	PerFileChecklist []ChecklistTemplate `yaml:"per_file_checklist" json:"per_file_checklist" validate:"required,min=1,dive"`
	PatternDiscovery *PatternDiscovery   `yaml:"pattern_discovery,omitempty" json:"pattern_discovery,omitempty" validate:"omitempty"`
	TopicDiscovery   TopicDiscovery      `yaml:"topic_discovery" json:"topic_discovery"`
	CompletionRules  CompletionRules     `yaml:"completion_rules" json:"completion_rules"`
	// Override lets a definition file replace an already registered type of
	// the same name when loaded from a workflows directory.
	Override bool `yaml:"override,omitempty" json:"-"`
}

// Phase is a coarse stage of the workflow.
type Phase struct {
	ID       string `yaml:"id" json:"id" validate:"required"`
	Name     string `yaml:"name" json:"name" validate:"required"`
	Mode     string `yaml:"mode" json:"mode" validate:"required,oneof=autonomous guided agent_driven"`
	Required bool   `yaml:"required" json:"required"`
}

// ChecklistTemplate seeds one checklist item on every discovered file.
// TopicID is required for topic_application items and ignored otherwise.
type ChecklistTemplate struct {
	ID          string `yaml:"id" json:"id" validate:"required,workflowid"`
	Type        string `yaml:"type" json:"type" validate:"required,oneof=analysis topic_application validation custom"`
	Description string `yaml:"description" json:"description" validate:"required"`
	TopicID     string `yaml:"topic_id,omitempty" json:"topic_id,omitempty" validate:"required_if=Type topic_application"`
}

// PatternDiscovery configures the optional autonomous scan at session start.
type PatternDiscovery struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// TimeoutMS bounds the scan; 0 means use the engine default.
	TimeoutMS int                 `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty" validate:"gte=0"`
	Patterns  []PatternDefinition `yaml:"patterns" json:"patterns" validate:"required_if=Enabled true,dive"`
}

// PatternDefinition is one regex detector with its classifier and templates.
type PatternDefinition struct {
	ID          string `yaml:"id" json:"id" validate:"required,workflowid"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Regex       string `yaml:"regex" json:"regex" validate:"required"`
	// Flags is any combination of i (case-insensitive), m (multi-line), s (dot matches newline).
	Flags        string           `yaml:"flags,omitempty" json:"flags,omitempty"`
	Exclude      string           `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	ContextLines int              `yaml:"context_lines,omitempty" json:"context_lines,omitempty" validate:"gte=0,lte=50"`
	Classifiers  []ClassifierRule `yaml:"classifiers,omitempty" json:"classifiers,omitempty" validate:"dive"`
	Transforms   []Transform      `yaml:"transformations,omitempty" json:"transformations,omitempty" validate:"dive"`
}

// ClassifierRule assigns an instance type when Pattern matches the matched text.
// Rules are tested in declared order and the first match wins.
type ClassifierRule struct {
	Pattern      string `yaml:"pattern" json:"pattern" validate:"required"`
	InstanceType string `yaml:"instance_type" json:"instance_type" validate:"required"`
	AutoFixable  bool   `yaml:"auto_fixable" json:"auto_fixable"`
}

// Transform is a replacement template for one instance type. The template is
// copied verbatim into PatternMatch.SuggestedReplacement.
type Transform struct {
	InstanceType string `yaml:"instance_type" json:"instance_type" validate:"required"`
	Template     string `yaml:"template" json:"template" validate:"required"`
}

// TopicDiscovery holds the threshold for checklist expansion candidates.
type TopicDiscovery struct {
	MinRelevanceScore float64 `yaml:"min_relevance_score" json:"min_relevance_score" validate:"gte=0,lte=1"`
	// MaxTopicsPerFile caps expansion per report (0 = no cap).
	MaxTopicsPerFile int `yaml:"max_topics_per_file,omitempty" json:"max_topics_per_file,omitempty" validate:"gte=0"`
}

// CompletionRules decide when a session may be marked completed.
type CompletionRules struct {
	// AllowSkippedFiles lets skipped files count as done. When false, a session
	// whose remaining files are all skipped becomes blocked instead of completed.
	AllowSkippedFiles bool `yaml:"allow_skipped_files" json:"allow_skipped_files"`
}

// ScanEnabled reports whether the definition asks for the autonomous pattern scan.
func (d Definition) ScanEnabled() bool {
	return d.PatternDiscovery != nil && d.PatternDiscovery.Enabled && len(d.PatternDiscovery.Patterns) > 0
}

// Transform returns the template for instanceType, if any.
func (p PatternDefinition) Transform(instanceType string) (string, bool) {
	for _, t := range p.Transforms {
		if t.InstanceType == instanceType {
			return t.Template, true
		}
	}
	return "", false
}
