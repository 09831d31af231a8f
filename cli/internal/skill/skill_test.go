package skill

import (
	"strings"
	"testing"
)

func TestSKILL_containsFrontmatter(t *testing.T) {
	t.Parallel()
	content := SKILL("1.2.3")
	if !strings.HasPrefix(content, "---\n") {
		t.Error("SKILL output must start with YAML frontmatter delimiter ---")
	}
	for _, want := range []string{"name: sift-workflows", "description:", "metadata:", "version: \"1.2.3\""} {
		if !strings.Contains(content, want) {
			t.Errorf("SKILL output must contain %q", want)
		}
	}
}

func TestSKILL_containsRequiredSections(t *testing.T) {
	t.Parallel()
	content := SKILL("dev")
	for _, section := range []string{
		"# Sift Workflows",
		"## When to Use This Skill",
		"## Commands",
		"## Action Types",
		"## Progress Report",
		"## Rules",
		"## Examples",
		"sift start",
		"sift progress",
		"--execute --token",
		"analyze_file",
		"apply_topic",
		"convert_instance",
		"complete_file",
		"skip_item",
		"complete_workflow",
		"expand_checklist",
	} {
		if !strings.Contains(content, section) {
			t.Errorf("SKILL output must contain %q", section)
		}
	}
}

func TestSKILL_emptyVersionDefaults(t *testing.T) {
	t.Parallel()
	content := SKILL("")
	if !strings.Contains(content, "version: \"1.0\"") {
		t.Error("SKILL(\"\") should embed version 1.0 as default")
	}
}
