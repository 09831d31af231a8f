package session

import (
	"slices"

	"sift/cli/internal/definition"
)

// ItemIndex returns the index of the item with id, or -1.
func (f *FileEntry) ItemIndex(id string) int {
	return slices.IndexFunc(f.Checklist, func(it ChecklistItem) bool { return it.ID == id })
}

// FirstPending returns the index of the first pending item, or -1.
func (f *FileEntry) FirstPending() int {
	return slices.IndexFunc(f.Checklist, func(it ChecklistItem) bool { return it.Status == ItemPending })
}

// FirstOpen returns the index of the first item that is in_progress or
// pending, or -1.
func (f *FileEntry) FirstOpen() int {
	return slices.IndexFunc(f.Checklist, func(it ChecklistItem) bool {
		return it.Status == ItemInProgress || it.Status == ItemPending
	})
}

// HasOpenItems reports whether any item is pending or in_progress.
func (f *FileEntry) HasOpenItems() bool {
	return f.FirstOpen() >= 0
}

// AllTerminal reports whether every checklist item is completed, skipped or
// failed. An empty checklist is terminal.
func (f *FileEntry) AllTerminal() bool {
	for _, it := range f.Checklist {
		if !it.Status.Terminal() {
			return false
		}
	}
	return true
}

// ValidationIndex returns the index of the validation sentinel, or -1.
func (f *FileEntry) ValidationIndex() int {
	return slices.IndexFunc(f.Checklist, func(it ChecklistItem) bool { return it.Type == definition.ItemValidation })
}

// InsertBeforeValidation places items immediately before the validation item,
// or appends them when the file has none. Relative order of items is kept.
func (f *FileEntry) InsertBeforeValidation(items ...ChecklistItem) {
	if len(items) == 0 {
		return
	}
	at := f.ValidationIndex()
	if at < 0 {
		f.Checklist = append(f.Checklist, items...)
		return
	}
	f.Checklist = slices.Insert(f.Checklist, at, items...)
}

// HasTopic reports whether a topic_application item for topicID exists.
func (f *FileEntry) HasTopic(topicID string) bool {
	return slices.ContainsFunc(f.Checklist, func(it ChecklistItem) bool {
		return it.Type == definition.ItemTopicApplication && it.TopicID == topicID
	})
}

// FileIndex returns the inventory index of path, or -1.
func (s *Session) FileIndex(path string) int {
	return slices.IndexFunc(s.FileInventory, func(f FileEntry) bool { return f.Path == path })
}

// NextPendingFile returns the index of the first file at or after from whose
// status is pending, or -1.
func (s *Session) NextPendingFile(from int) int {
	for i := max(from, 0); i < len(s.FileInventory); i++ {
		if s.FileInventory[i].Status == FilePending {
			return i
		}
	}
	return -1
}

// HasOpenItems reports whether any file still has a pending or in_progress item.
func (s *Session) HasOpenItems() bool {
	for i := range s.FileInventory {
		if s.FileInventory[i].HasOpenItems() {
			return true
		}
	}
	return false
}

// RecountFiles recomputes FilesCompleted and FilesTotal from the inventory.
func (s *Session) RecountFiles() {
	n := 0
	for _, f := range s.FileInventory {
		if f.Status == FileCompleted {
			n++
		}
	}
	s.FilesCompleted = n
	s.FilesTotal = len(s.FileInventory)
}

// RecountInstances recomputes the pattern-instance counters from the checklists.
func (s *Session) RecountInstances() {
	var total, done, fixed, manual int
	for _, f := range s.FileInventory {
		for _, it := range f.Checklist {
			if it.Type != definition.ItemPatternInstance {
				continue
			}
			total++
			if it.Status == ItemCompleted {
				done++
			}
			if it.PatternMatch == nil {
				continue
			}
			if it.PatternMatch.AutoFixed {
				fixed++
			}
			if it.PatternMatch.RequiresManualReview {
				manual++
			}
		}
	}
	s.InstancesTotal = total
	s.InstancesCompleted = done
	s.InstancesAutoFixed = fixed
	s.InstancesManualReview = manual
}

// Done reports whether every file is finished and no checklist item is open.
// Skipped files count as finished only when allowSkipped is true.
func (s *Session) Done(allowSkipped bool) bool {
	if s.HasOpenItems() {
		return false
	}
	for _, f := range s.FileInventory {
		switch f.Status {
		case FileCompleted:
		case FileSkipped:
			if !allowSkipped {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SetPhase marks phase id in_progress and records it as current. Earlier
// phases that are still pending or in progress become completed.
func (s *Session) SetPhase(id string) {
	for i := range s.Phases {
		p := &s.Phases[i]
		if p.ID == id {
			p.Status = PhaseInProgress
			s.CurrentPhase = id
			return
		}
		if p.Status == PhasePending || p.Status == PhaseInProgress {
			p.Status = PhaseCompleted
		}
	}
}

// CompletePhases marks every unfinished phase completed.
func (s *Session) CompletePhases() {
	for i := range s.Phases {
		if s.Phases[i].Status != PhaseSkipped {
			s.Phases[i].Status = PhaseCompleted
		}
	}
}
