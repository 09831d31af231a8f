// Package discovery builds a session's file inventory: include/exclude glob
// expansion under a base directory, a file cap, object-type classification by
// filename suffix, a stable priority ordering, and per-file checklist seeding.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sift/cli/internal/definition"
	"sift/cli/internal/session"
)

// Request describes one discovery pass.
type Request struct {
	// Root is the workspace root. Inventory paths are slash-separated and
	// relative to it.
	Root string
	// Base is a directory or single file relative to Root. Empty means Root.
	Base     string
	Include  []string
	Exclude  []string
	MaxFiles int
	Priority []string
	// Checklist seeds every file's checklist.
	Checklist []definition.ChecklistTemplate
}

// Discover expands req.Include in order under the base, skipping excluded and
// already collected paths, and stops at MaxFiles (0 = unlimited). The result
// is stable-sorted by Priority and every entry is pending with a fresh
// checklist.
func Discover(ctx context.Context, req Request) ([]session.FileEntry, error) {
	if req.Root == "" {
		return nil, session.ErrWorkspaceNotBound
	}
	for _, p := range append(append([]string(nil), req.Include...), req.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("discovery: invalid glob pattern %q", p)
		}
	}
	base := path.Clean(filepath.ToSlash(req.Base))
	if base == "." || base == "/" {
		base = ""
	}
	if strings.HasPrefix(base, "../") || base == ".." || path.IsAbs(base) {
		return nil, fmt.Errorf("discovery: path %q is outside the workspace", req.Base)
	}
	baseAbs := filepath.Join(req.Root, filepath.FromSlash(base))
	info, err := os.Stat(baseAbs)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	var paths []string
	if !info.IsDir() {
		// Single-file scope ignores include patterns but still honors exclusions.
		if !excluded(base, req.Exclude) {
			paths = append(paths, base)
		}
	} else {
		paths, err = expand(ctx, os.DirFS(baseAbs), base, req.Include, req.Exclude, req.MaxFiles)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]session.FileEntry, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(filepath.Join(req.Root, filepath.FromSlash(p)))
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		entries = append(entries, session.FileEntry{
			Path:       p,
			Status:     session.FilePending,
			Size:       st.Size(),
			ObjectType: ObjectType(p),
			Checklist:  SeedChecklist(req.Checklist),
		})
	}
	SortByPriority(entries, req.Priority)
	return entries, nil
}

func expand(ctx context.Context, fsys fs.FS, base string, include, exclude []string, maxFiles int) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range include {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			if errors.Is(err, doublestar.ErrBadPattern) {
				return nil, fmt.Errorf("discovery: invalid glob pattern %q", pattern)
			}
			return nil, fmt.Errorf("discovery: expand %q: %w", pattern, err)
		}
		sort.Strings(hits)
		for _, hit := range hits {
			rel := hit
			if base != "" {
				rel = base + "/" + hit
			}
			if _, dup := seen[rel]; dup {
				continue
			}
			if excluded(rel, exclude) || excluded(hit, exclude) {
				continue
			}
			if maxFiles > 0 && len(out) >= maxFiles {
				return out, nil
			}
			seen[rel] = struct{}{}
			out = append(out, rel)
		}
	}
	return out, nil
}

func excluded(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// SortByPriority stable-sorts entries by the index of the first priority
// pattern contained in the path (case-insensitive). Unmatched files go last;
// ties keep discovery order.
func SortByPriority(entries []session.FileEntry, priority []string) {
	if len(priority) == 0 {
		return
	}
	lowered := make([]string, len(priority))
	for i, p := range priority {
		lowered[i] = strings.ToLower(p)
	}
	rank := func(p string) int {
		p = strings.ToLower(p)
		for i, want := range lowered {
			if want != "" && strings.Contains(p, want) {
				return i
			}
		}
		return len(lowered)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return rank(entries[i].Path) < rank(entries[j].Path)
	})
}

// SeedChecklist instantiates the template with ids "<template id>-<8 hex>".
func SeedChecklist(templates []definition.ChecklistTemplate) []session.ChecklistItem {
	out := make([]session.ChecklistItem, 0, len(templates))
	for _, t := range templates {
		out = append(out, session.ChecklistItem{
			ID:          t.ID + "-" + session.ShortID(),
			Type:        t.Type,
			Description: t.Description,
			Status:      session.ItemPending,
			TopicID:     t.TopicID,
		})
	}
	return out
}
