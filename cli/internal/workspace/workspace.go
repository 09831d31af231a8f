// Package workspace resolves the directory sift treats as the workspace root:
// an explicit path, else the enclosing git repository, else the current
// directory.
package workspace

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"sift/cli/internal/erruser"
)

// ErrNotARepo is returned by RepoRoot when dir is outside any git repository.
var ErrNotARepo = errors.New("not inside a git repository")

// Resolve returns the absolute workspace root. A non-empty explicit path must
// be an existing directory. Otherwise the git top level containing cwd is
// used, falling back to cwd when git is unavailable or cwd is not in a repo.
func Resolve(explicit, cwd string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", erruser.New("Could not resolve workspace root.", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", erruser.New("Workspace root does not exist.", err)
		}
		if !info.IsDir() {
			return "", erruser.New("Workspace root is not a directory.", nil)
		}
		return abs, nil
	}
	if root, err := RepoRoot(cwd); err == nil {
		return root, nil
	}
	return filepath.Abs(cwd)
}

// RepoRoot returns the absolute path of the git repository root containing dir.
// Runs "git rev-parse --show-toplevel" with Dir=dir.
func RepoRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	cmd.Env = minimalEnv()
	out, err := cmd.Output()
	if err != nil {
		return "", erruser.New("This directory is not inside a Git repository.", errors.Join(ErrNotARepo, err))
	}
	root := strings.TrimSpace(string(out))
	return filepath.Abs(root)
}

func minimalEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_PAGER=cat",
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	} else if runtime.GOOS == "windows" {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			env = append(env, "HOME="+profile)
		}
	}
	return env
}
