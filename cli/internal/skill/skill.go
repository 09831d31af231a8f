// Package skill provides the Agent Skills SKILL.md content that teaches an
// LLM agent to drive sift sessions: the next/progress loop, checklist
// expansion, and the two-step batch protocol.
package skill

// SKILL returns the full SKILL.md content (YAML frontmatter + Markdown body)
// for the sift-workflows Agent Skill. The version string is embedded in
// frontmatter metadata (e.g. from version.String()).
func SKILL(version string) string {
	if version == "" {
		version = "1.0"
	}
	// Double-quoted so markdown backticks do not break the literal.
	return "---\n" +
		"name: sift-workflows\n" +
		"description: Drive checklist-based sift workflow sessions (code review, security audit, pattern migrations) one file at a time. Use when the user asks to run a sift workflow, continue a sift session, or convert pattern instances in bulk. Keywords: sift, workflow, checklist, batch, session.\n" +
		"metadata:\n" +
		"  version: \"" + version + "\"\n" +
		"---\n\n" +
		"# Sift Workflows\n\n" +
		"sift keeps the session state; you do the work. Every call returns the single next action, so never plan ahead from memory: ask sift, do the action, report back.\n\n" +
		"## When to Use This Skill\n\n" +
		"Activate this skill when the user wants to:\n\n" +
		"- Start a workflow over the workspace, a directory or one file (`sift start`)\n" +
		"- Continue an interrupted session (`sift next <id>`)\n" +
		"- Apply or skip many pattern instances at once (`sift batch`)\n" +
		"- Produce the final report (`sift report <id>`)\n\n" +
		"## Commands\n\n" +
		"| Command | Description |\n" +
		"|---------|-------------|\n" +
		"| `sift workflows` | List workflow types |\n" +
		"| `sift start <type> [--scope directory --path src]` | Discover files, scan patterns, print the session and first action |\n" +
		"| `sift next <id>` | Print the next action (read-only) |\n" +
		"| `sift progress <id> --input -` | Report a finished action as JSON on stdin; prints the next action |\n" +
		"| `sift batch <id> [--operation op] [filters]` | Preview a batch and get a confirmation token |\n" +
		"| `sift batch <id> --execute --token <t> [same filters]` | Execute the previewed batch |\n" +
		"| `sift report <id> [--format json]` | Generate and save the report |\n" +
		"| `sift status <id> [-f]` | Counters, phase, per-file progress |\n" +
		"| `sift list`, `sift log [id]`, `sift delete <id>`, `sift cleanup` | Housekeeping |\n\n" +
		"## Action Types\n\n" +
		"| Action | What to do |\n" +
		"|--------|------------|\n" +
		"| **analyze_file** | Read the file, analyze it, report findings and pass relevant topics as `expand_checklist`. |\n" +
		"| **apply_topic** | Fetch the topic's guidance, apply it to the file, report findings and proposed changes. |\n" +
		"| **convert_instance** | Convert one pattern instance. Auto-fixable ones can go through a batch instead. |\n" +
		"| **complete_file** | Confirm everything for the file is reported, then report the validation item completed. |\n" +
		"| **skip_item** | No automated handling; do it by hand or report it skipped. |\n" +
		"| **complete_workflow** | Nothing left. Generate the report. |\n\n" +
		"## Progress Report\n\n" +
		"```json\n" +
		"{\"completed_action\": {\"type\": \"analyze_file\", \"file\": \"src/a.go\", \"checklist_item_id\": \"analyze-1a2b3c4d\", \"status\": \"completed\"},\n" +
		" \"findings\": [{\"severity\": \"warning\", \"category\": \"errors\", \"line\": 12, \"description\": \"error ignored\"}],\n" +
		" \"proposed_changes\": [],\n" +
		" \"expand_checklist\": [{\"topic_id\": \"error-handling\", \"relevance_score\": 0.8}]}\n" +
		"```\n\n" +
		"`file` and `checklist_item_id` are optional; sift falls back to the current file and its first open item. Use `\"type\": \"skip_file\"` or `\"block_file\"` to set a whole file aside.\n\n" +
		"## Rules\n\n" +
		"1. Always act on the action sift returned; do not reorder files or items yourself.\n" +
		"2. Pass the `file` and `checklist_item_id` from the action back in the report so out-of-order reports stay unambiguous.\n" +
		"3. Severity is one of `critical`, `error`, `warning`, `info`; only `relevance_score` values at or above the workflow threshold add checklist items.\n" +
		"4. Batch execution needs the token from a preview with the **same** operation and filter; any session change in between invalidates it. Re-run the preview when rejected.\n" +
		"5. sift records proposed changes; it never edits files. Apply edits yourself before reporting them done.\n" +
		"6. A completed, skipped or blocked file accepts no further reports; report findings before the file's last item.\n\n" +
		"## Examples\n\n" +
		"**User:** \"Run a security audit on src.\"\n" +
		"**Action:** Run `sift start security_audit --scope directory --path src`, then follow `next_action`.\n\n" +
		"**User:** \"Convert all the simple error literals.\"\n" +
		"**Action:** Run `sift batch <id> --operation apply_auto_fix --instance-type simple_literal`, show the preview, then rerun with `--execute --token <token>`.\n"
}
