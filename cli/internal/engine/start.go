package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sift/cli/internal/definition"
	"sift/cli/internal/discovery"
	"sift/cli/internal/erruser"
	"sift/cli/internal/history"
	"sift/cli/internal/scanner"
	"sift/cli/internal/session"
)

// StartRequest creates a session.
type StartRequest struct {
	WorkflowType string `json:"workflow_type"`
	// Scope is workspace (default), directory or file; Path is relative to
	// the workspace root for the latter two.
	Scope   string          `json:"scope,omitempty"`
	Path    string          `json:"path,omitempty"`
	Options session.Options `json:"options"`
	// InitialProcessing runs the definition's pattern scan before returning.
	InitialProcessing bool `json:"initial_processing"`
}

// StartResult is the created session plus the scan summary when a scan ran.
type StartResult struct {
	Session         *session.Session `json:"session"`
	AnalysisSummary *scanner.Summary `json:"analysis_summary,omitempty"`
	DurationMS      int64            `json:"duration_ms"`
}

// StartWorkflow resolves the definition, discovers files, optionally scans
// them, and stores the new session. An unknown workflow type creates nothing.
func (e *Engine) StartWorkflow(ctx context.Context, req StartRequest) (StartResult, error) {
	started := time.Now()
	def, err := e.defs.Get(req.WorkflowType)
	if err != nil {
		return StartResult{}, err
	}
	if e.root == "" {
		return StartResult{}, session.ErrWorkspaceNotBound
	}
	scope := req.Scope
	if scope == "" {
		scope = session.ScopeWorkspace
	}
	base := ""
	switch scope {
	case session.ScopeWorkspace:
	case session.ScopeDirectory, session.ScopeFile:
		if req.Path == "" {
			return StartResult{}, erruser.New(fmt.Sprintf("Scope %q requires a path.", scope), nil)
		}
		base = req.Path
	default:
		return StartResult{}, erruser.New(fmt.Sprintf("Unknown scope %q (want workspace, directory or file).", scope), nil)
	}

	opts := req.Options
	opts.Scope = scope
	opts.Path = req.Path
	include := opts.FilePatterns
	if len(include) == 0 {
		include = def.FilePatterns
	}
	exclude := append(append([]string(nil), def.FileExclusions...), opts.ExcludePatterns...)
	priority := opts.PriorityPatterns
	if len(priority) == 0 {
		priority = def.PriorityPatterns
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = e.maxFiles
	}

	files, err := discovery.Discover(ctx, discovery.Request{
		Root:      e.root,
		Base:      base,
		Include:   include,
		Exclude:   exclude,
		MaxFiles:  maxFiles,
		Priority:  priority,
		Checklist: def.PerFileChecklist,
	})
	if err != nil {
		if errors.Is(err, session.ErrWorkspaceNotBound) {
			return StartResult{}, err
		}
		return StartResult{}, erruser.New("Could not discover files.", err)
	}
	e.tracer.Section("Discovery")
	e.tracer.Printf("%d file(s) under %q\n", len(files), base)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Path
	}
	e.tracer.List(names, 20)

	now := e.clock()
	s := &session.Session{
		ID:            session.NewID(def.Type, now),
		WorkflowType:  def.Type,
		Status:        session.StatusInitializing,
		CreatedAt:     now,
		UpdatedAt:     now,
		FileInventory: files,
		Phases:        phasesFor(def),
		Options:       opts,
	}

	var summary *scanner.Summary
	scanRan := false
	if def.ScanEnabled() && req.InitialProcessing {
		timeout := e.scanTimeout
		if ms := def.PatternDiscovery.TimeoutMS; ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
		sum := scanner.Scan(ctx, s.FileInventory, scanner.Options{
			Root:        e.root,
			Patterns:    def.PatternDiscovery.Patterns,
			Concurrency: e.scanConcurrency,
			Timeout:     timeout,
			Logger:      e.log,
		})
		summary = &sum
		scanRan = true
		e.metrics.RecordScan(def.Type, time.Duration(sum.DurationMS)*time.Millisecond, sum.TimedOut)
		if sum.TimedOut {
			e.log.Warn("pattern scan hit its deadline; returning partial results",
				"workflow_type", def.Type, "files_scanned", sum.FilesScanned, "timeout", timeout)
		}
		e.tracer.Section("Pattern scan")
		e.tracer.Printf("instances=%d files_with_matches=%d scanned=%d timed_out=%v\n",
			sum.TotalInstances, sum.FilesWithMatches, sum.FilesScanned, sum.TimedOut)
	}
	settleAutonomousPhases(s, def, scanRan)

	if len(s.FileInventory) > 0 {
		s.FileInventory[0].Status = session.FileInProgress
	}
	s.CurrentFileIndex = 0
	refreshStatus(s, def)

	if err := e.store.Create(ctx, s); err != nil {
		if errors.Is(err, session.ErrWorkspaceNotBound) || errors.Is(err, session.ErrExists) {
			return StartResult{}, err
		}
		e.metrics.RecordPersistFailure()
		e.log.Warn("session write failed; state is not durable until the next successful write", "session", s.ID, "error", err)
	}
	e.metrics.RecordSessionStarted(def.Type)
	e.log.Info("session started", "session", s.ID, "workflow_type", def.Type, "files", len(s.FileInventory), "instances", s.InstancesTotal)
	detail := fmt.Sprintf("files=%d", len(s.FileInventory))
	if summary != nil {
		detail += fmt.Sprintf(" instances=%d timed_out=%v", summary.TotalInstances, summary.TimedOut)
	}
	e.record(history.Record{SessionID: s.ID, Event: history.EventStart, At: now, Detail: detail})

	return StartResult{Session: s, AnalysisSummary: summary, DurationMS: time.Since(started).Milliseconds()}, nil
}

func phasesFor(def definition.Definition) []session.Phase {
	out := make([]session.Phase, len(def.Phases))
	for i, p := range def.Phases {
		out[i] = session.Phase{ID: p.ID, Name: p.Name, Status: session.PhasePending, Mode: p.Mode, Required: p.Required}
	}
	return out
}

// settleAutonomousPhases closes the autonomous phases (discovery always ran;
// a scan phase is skipped when the caller opted out of the scan) and opens
// the first phase the agent drives.
func settleAutonomousPhases(s *session.Session, def definition.Definition, scanRan bool) {
	for i := range s.Phases {
		p := &s.Phases[i]
		if p.Mode != definition.ModeAutonomous {
			continue
		}
		p.Status = session.PhaseCompleted
		if def.ScanEnabled() && !scanRan {
			p.Status = session.PhaseSkipped
		}
	}
	for _, p := range s.Phases {
		if p.Mode != definition.ModeAutonomous {
			s.SetPhase(p.ID)
			return
		}
	}
	if len(s.Phases) > 0 {
		s.CurrentPhase = s.Phases[len(s.Phases)-1].ID
	}
}
