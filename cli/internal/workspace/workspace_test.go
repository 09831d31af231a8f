package workspace

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}
	// Resolve symlinks (macOS /var -> /private/var) so comparisons match git's output.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

func TestRepoRoot_fromSubdir(t *testing.T) {
	t.Parallel()
	repo := initRepo(t)
	sub := filepath.Join(repo, "src", "app")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	got, err := RepoRoot(sub)
	if err != nil {
		t.Fatalf("RepoRoot: %v", err)
	}
	if got != repo {
		t.Errorf("RepoRoot(sub) = %q, want %q", got, repo)
	}
}

func TestRepoRoot_notARepo(t *testing.T) {
	t.Parallel()
	_, err := RepoRoot(t.TempDir())
	if !errors.Is(err, ErrNotARepo) {
		t.Fatalf("RepoRoot(non-repo) = %v, want ErrNotARepo", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	plain := t.TempDir()
	got, err := Resolve("", plain)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want, _ := filepath.Abs(plain)
	if got != want {
		t.Errorf("Resolve(\"\", plain) = %q, want %q", got, want)
	}

	got, err = Resolve(plain, "/")
	if err != nil || got != want {
		t.Errorf("Resolve(explicit) = %q, %v; want %q", got, err, want)
	}

	file := filepath.Join(plain, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(file, plain); err == nil {
		t.Error("Resolve(file): expected error")
	}
	if _, err := Resolve(filepath.Join(plain, "missing"), plain); err == nil {
		t.Error("Resolve(missing): expected error")
	}
}
