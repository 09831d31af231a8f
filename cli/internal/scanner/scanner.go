// Package scanner runs a workflow's pattern-discovery rules over the file
// inventory: regex matching, exclusion, classification, and one
// pattern_instance checklist item per match. Files are scanned concurrently
// under a deadline; on expiry the partial result is returned.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sift/cli/internal/definition"
	"sift/cli/internal/logging"
	"sift/cli/internal/session"
)

// Unclassified is the instance type of a match no classifier rule accepted.
const Unclassified = "unclassified"

// Suggested batch actions.
const (
	ActionApplyAllAuto  = "apply_all_auto"
	ActionReviewComplex = "review_complex"
	ActionFlagManual    = "flag_manual"
)

// Options configures Scan.
type Options struct {
	// Root is joined with each inventory path to read the file.
	Root     string
	Patterns []definition.PatternDefinition
	// Concurrency bounds files scanned at once; <= 0 means 1.
	Concurrency int
	// Timeout bounds the whole scan; 0 means no deadline beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Summary is the aggregate result of a scan.
type Summary struct {
	TotalInstances   int                  `json:"total_instances"`
	FilesWithMatches int                  `json:"files_with_matches"`
	FilesScanned     int                  `json:"files_scanned"`
	ByType           map[string]TypeCount `json:"by_type"`
	SuggestedActions []SuggestedAction    `json:"suggested_actions"`
	TimedOut         bool                 `json:"timed_out,omitempty"`
	DurationMS       int64                `json:"duration_ms"`
	Errors           []ScanError          `json:"errors,omitempty"`
}

// TypeCount is the per-instance-type breakdown.
type TypeCount struct {
	Count       int  `json:"count"`
	AutoFixable bool `json:"auto_fixable"`
}

// SuggestedAction proposes a batch operation over part of the instances.
type SuggestedAction struct {
	Action        string `json:"action"`
	Description   string `json:"description"`
	InstanceCount int    `json:"instance_count"`
	FileCount     int    `json:"file_count"`
}

// ScanError records a file or pattern that was skipped.
type ScanError struct {
	File      string `json:"file,omitempty"`
	PatternID string `json:"pattern_id,omitempty"`
	Message   string `json:"message"`
}

type compiledPattern struct {
	def         definition.PatternDefinition
	re          *regexp.Regexp
	exclude     *regexp.Regexp
	classifiers []compiledClassifier
}

type compiledClassifier struct {
	re   *regexp.Regexp
	rule definition.ClassifierRule
}

type fileResult struct {
	scanned bool
	matches []session.PatternMatch
	errs    []ScanError
}

// Scan appends one pattern_instance item per match to each file's checklist
// (before its validation item) and returns the summary. Per-pattern and
// per-file failures are logged and recorded in Summary.Errors; they never
// fail the scan.
func Scan(ctx context.Context, files []session.FileEntry, opts Options) Summary {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	sum := Summary{ByType: make(map[string]TypeCount)}

	patterns := make([]compiledPattern, 0, len(opts.Patterns))
	for _, p := range opts.Patterns {
		cp, err := compile(p)
		if err != nil {
			log.Warn("skipping pattern", "pattern", p.ID, "error", err)
			sum.Errors = append(sum.Errors, ScanError{PatternID: p.ID, Message: err.Error()})
			continue
		}
		patterns = append(patterns, cp)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]fileResult, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = scanFile(ctx, opts.Root, files[i].Path, patterns)
			return nil
		})
	}
	_ = g.Wait()
	sum.TimedOut = ctx.Err() != nil

	for i := range files {
		r := results[i]
		for _, e := range r.errs {
			log.Warn("scan error", "file", e.File, "pattern", e.PatternID, "error", e.Message)
		}
		sum.Errors = append(sum.Errors, r.errs...)
		if r.scanned {
			sum.FilesScanned++
		}
		if len(r.matches) == 0 {
			continue
		}
		sum.FilesWithMatches++
		items := make([]session.ChecklistItem, 0, len(r.matches))
		for _, m := range r.matches {
			items = append(items, session.ChecklistItem{
				ID:           m.PatternID + "-" + session.ShortID(),
				Type:         definition.ItemPatternInstance,
				Description:  fmt.Sprintf("Convert %s instance at line %d", m.InstanceType, m.LineNumber),
				Status:       session.ItemPending,
				PatternMatch: &m,
			})
			sum.TotalInstances++
			tc := sum.ByType[m.InstanceType]
			tc.Count++
			tc.AutoFixable = tc.AutoFixable || m.AutoFixable
			sum.ByType[m.InstanceType] = tc
		}
		files[i].InsertBeforeValidation(items...)
	}
	sum.SuggestedActions = suggest(results)
	sum.DurationMS = time.Since(start).Milliseconds()
	return sum
}

func compile(p definition.PatternDefinition) (compiledPattern, error) {
	re, err := definition.CompileRegex(p.Regex, p.Flags)
	if err != nil {
		return compiledPattern{}, fmt.Errorf("compile regex: %w", err)
	}
	cp := compiledPattern{def: p, re: re}
	if p.Exclude != "" {
		if cp.exclude, err = regexp.Compile(p.Exclude); err != nil {
			return compiledPattern{}, fmt.Errorf("compile exclude: %w", err)
		}
	}
	for i, c := range p.Classifiers {
		cre, err := regexp.Compile(c.Pattern)
		if err != nil {
			return compiledPattern{}, fmt.Errorf("compile classifier %d: %w", i, err)
		}
		cp.classifiers = append(cp.classifiers, compiledClassifier{re: cre, rule: c})
	}
	return cp, nil
}

func scanFile(ctx context.Context, root, path string, patterns []compiledPattern) fileResult {
	var r fileResult
	if ctx.Err() != nil {
		return r
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if err != nil {
		r.errs = append(r.errs, ScanError{File: path, Message: err.Error()})
		return r
	}
	content := string(data)
	var lines []string
	for _, p := range patterns {
		if ctx.Err() != nil {
			return r
		}
		for _, loc := range p.re.FindAllStringIndex(content, -1) {
			text := content[loc[0]:loc[1]]
			if p.exclude != nil && p.exclude.MatchString(text) {
				continue
			}
			line := strings.Count(content[:loc[0]], "\n") + 1
			if lines == nil {
				lines = strings.Split(content, "\n")
			}
			m := session.PatternMatch{
				PatternID:    p.def.ID,
				LineNumber:   line,
				MatchText:    text,
				MatchContext: contextWindow(lines, line, p.def.ContextLines),
				InstanceType: Unclassified,
			}
			for _, c := range p.classifiers {
				if c.re.MatchString(text) {
					m.InstanceType = c.rule.InstanceType
					m.AutoFixable = c.rule.AutoFixable
					break
				}
			}
			m.RequiresManualReview = !m.AutoFixable
			if tmpl, ok := p.def.Transform(m.InstanceType); ok {
				m.SuggestedReplacement = tmpl
			}
			r.matches = append(r.matches, m)
		}
	}
	r.scanned = true
	return r
}

// contextWindow returns lines [line-n, line+n] (1-based, clamped) joined by newlines.
func contextWindow(lines []string, line, n int) string {
	from := max(line-1-n, 0)
	to := min(line+n, len(lines))
	return strings.Join(lines[from:to], "\n")
}

func suggest(results []fileResult) []SuggestedAction {
	type bucket struct {
		instances int
		files     map[int]struct{}
	}
	buckets := map[string]*bucket{}
	order := []string{ActionApplyAllAuto, ActionReviewComplex, ActionFlagManual}
	for _, a := range order {
		buckets[a] = &bucket{files: map[int]struct{}{}}
	}
	for i, r := range results {
		for _, m := range r.matches {
			action := ActionReviewComplex
			switch {
			case m.AutoFixable:
				action = ActionApplyAllAuto
			case m.InstanceType == Unclassified:
				action = ActionFlagManual
			}
			b := buckets[action]
			b.instances++
			b.files[i] = struct{}{}
		}
	}
	desc := map[string]string{
		ActionApplyAllAuto:  "Apply the suggested replacement to every auto-fixable instance in one batch",
		ActionReviewComplex: "Review classified instances that need manual conversion",
		ActionFlagManual:    "Flag instances no classifier recognised for manual inspection",
	}
	var out []SuggestedAction
	for _, a := range order {
		b := buckets[a]
		if b.instances == 0 {
			continue
		}
		out = append(out, SuggestedAction{Action: a, Description: desc[a], InstanceCount: b.instances, FileCount: len(b.files)})
	}
	return out
}
