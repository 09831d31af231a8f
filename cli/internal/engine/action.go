package engine

import (
	"fmt"

	"sift/cli/internal/definition"
	"sift/cli/internal/session"
)

// Action types returned by NextAction.
const (
	ActionAnalyzeFile      = "analyze_file"
	ActionApplyTopic       = "apply_topic"
	ActionConvertInstance  = "convert_instance"
	ActionCompleteFile     = "complete_file"
	ActionSkipItem         = "skip_item"
	ActionCompleteWorkflow = "complete_workflow"
)

// Tool names used in ToolCall hints.
const (
	ToolAnalyzeCode    = "analyze_code"
	ToolGetTopic       = "get_topic"
	ToolRunBatch       = "run_batch"
	ToolReportProgress = "report_progress"
	ToolGenerateReport = "generate_report"
)

// Action is the single next unit of work. It is computed on demand and never
// persisted.
type Action struct {
	Type        string                `json:"type"`
	SessionID   string                `json:"session_id"`
	File        string                `json:"file,omitempty"`
	ItemID      string                `json:"checklist_item_id,omitempty"`
	TopicID     string                `json:"topic_id,omitempty"`
	Instance    *session.PatternMatch `json:"instance,omitempty"`
	Instruction string                `json:"instruction"`
	ToolCall    *ToolCall             `json:"tool_call,omitempty"`
	Progress    Progress              `json:"progress"`
}

// ToolCall is a hint for the tool the caller should invoke next.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Progress is a snapshot of session counters attached to every action.
type Progress struct {
	FilesCompleted int `json:"files_completed"`
	FilesTotal     int `json:"files_total"`
	CurrentFile    int `json:"current_file_index"`
}

// NextAction derives the next action from s without side effects. Calling it
// twice on the same state returns equal actions.
func NextAction(s *session.Session) Action {
	a := Action{
		SessionID: s.ID,
		Progress: Progress{
			FilesCompleted: s.FilesCompleted,
			FilesTotal:     s.FilesTotal,
			CurrentFile:    s.CurrentFileIndex,
		},
	}
	if s.FilesCompleted >= s.FilesTotal && !s.HasOpenItems() {
		return completeWorkflow(a)
	}
	idx := s.CurrentFileIndex
	if idx < 0 || idx >= len(s.FileInventory) {
		return completeWorkflow(a)
	}
	file := &s.FileInventory[idx]
	i := file.FirstPending()
	if i < 0 {
		next := s.NextPendingFile(idx + 1)
		if next < 0 {
			return completeWorkflow(a)
		}
		f := &s.FileInventory[next]
		a.Type = ActionAnalyzeFile
		a.File = f.Path
		if j := f.FirstPending(); j >= 0 {
			a.ItemID = f.Checklist[j].ID
		}
		a.Instruction = fmt.Sprintf("Move on to %s: read the file, run %s on its content, and report the returned topics as expand_checklist.", f.Path, ToolAnalyzeCode)
		a.ToolCall = &ToolCall{Name: ToolAnalyzeCode, Args: map[string]any{"file": f.Path, "workflow_type": s.WorkflowType}}
		return a
	}

	item := file.Checklist[i]
	a.File = file.Path
	a.ItemID = item.ID
	switch item.Type {
	case definition.ItemAnalysis:
		a.Type = ActionAnalyzeFile
		a.Instruction = fmt.Sprintf("Read %s and run %s on its content. Report this item with any findings, and pass the relevant topics as expand_checklist so they are added to the file's checklist.", file.Path, ToolAnalyzeCode)
		a.ToolCall = &ToolCall{Name: ToolAnalyzeCode, Args: map[string]any{"file": file.Path, "workflow_type": s.WorkflowType}}
	case definition.ItemTopicApplication:
		a.Type = ActionApplyTopic
		a.TopicID = item.TopicID
		a.Instruction = fmt.Sprintf("Fetch topic %q with %s and apply its guidance to %s. Report findings and proposed changes for this item.", item.TopicID, ToolGetTopic, file.Path)
		a.ToolCall = &ToolCall{Name: ToolGetTopic, Args: map[string]any{"topic_id": item.TopicID, "file": file.Path}}
	case definition.ItemPatternInstance:
		a.Type = ActionConvertInstance
		a.Instance = item.PatternMatch
		a.Instruction, a.ToolCall = convertInstruction(file.Path, item)
	case definition.ItemValidation:
		a.Type = ActionCompleteFile
		a.Instruction = fmt.Sprintf("Confirm every finding for %s has been reported, then report this item completed to mark the file complete.", file.Path)
		a.ToolCall = &ToolCall{Name: ToolReportProgress, Args: map[string]any{"file": file.Path, "checklist_item_id": item.ID, "status": string(session.ItemCompleted)}}
	default:
		a.Type = ActionSkipItem
		a.Instruction = fmt.Sprintf("Item %s (%s) has no automated handling: %s. Do it manually if it applies, otherwise report it skipped and continue.", item.ID, item.Type, item.Description)
		a.ToolCall = &ToolCall{Name: ToolReportProgress, Args: map[string]any{"file": file.Path, "checklist_item_id": item.ID, "status": string(session.ItemSkipped)}}
	}
	return a
}

func convertInstruction(path string, item session.ChecklistItem) (string, *ToolCall) {
	m := item.PatternMatch
	if m == nil {
		return fmt.Sprintf("Review %s item %s and report its outcome.", path, item.ID),
			&ToolCall{Name: ToolReportProgress, Args: map[string]any{"file": path, "checklist_item_id": item.ID}}
	}
	if m.RequiresManualReview {
		return fmt.Sprintf("Manually convert the %s instance at %s:%d (%q). It is not auto-fixable: edit it by hand, propose the change, and report this item.", m.InstanceType, path, m.LineNumber, m.MatchText),
			&ToolCall{Name: ToolReportProgress, Args: map[string]any{"file": path, "checklist_item_id": item.ID}}
	}
	return fmt.Sprintf("The %s instance at %s:%d is auto-fixable. Convert it using the suggested replacement, or preview a batch over every %s instance.", m.InstanceType, path, m.LineNumber, m.InstanceType),
		&ToolCall{Name: ToolRunBatch, Args: map[string]any{
			"operation": OpApplyAutoFix,
			"filter":    map[string]any{"instance_types": []string{m.InstanceType}, "auto_fixable_only": true},
			"dry_run":   true,
		}}
}

func completeWorkflow(a Action) Action {
	a.Type = ActionCompleteWorkflow
	a.File, a.ItemID = "", ""
	a.Instruction = "All files are processed. Generate the final report."
	a.ToolCall = &ToolCall{Name: ToolGenerateReport, Args: map[string]any{"session_id": a.SessionID, "format": "markdown"}}
	return a
}
