// Package version provides build version information and runtime metadata.
package version

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	// These are set via ldflags at build time
	Version = ""
	Commit  = ""
	Date    = ""

	once sync.Once

	// execCommand is replaced in tests.
	execCommand = exec.CommandContext
)

// Reset clears lazily computed values so they are derived again.
func Reset() {
	Version, Commit, Date = "", "", ""
	once = sync.Once{}
}

func ensureInitialized() {
	once.Do(func() {
		if Date == "" {
			Date = time.Now().Format("2006-01-02")
		}
		if Commit == "" {
			Commit = getGitCommit()
		}
		if Version == "" {
			Version = getGitVersion()
		}
	})
}

func runGit(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := execCommand(ctx, "git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func getGitCommit() string {
	out, err := runGit("describe", "--always", "--dirty")
	if err != nil || out == "" {
		return "unknown"
	}
	return out
}

func getGitVersion() string {
	out, err := runGit("describe", "--tags", "--abbrev=0")
	if err == nil && out != "" {
		return strings.TrimPrefix(out, "v")
	}
	return "dev"
}

// GetVersion returns the semantic version or "dev".
func GetVersion() string {
	ensureInitialized()
	return Version
}

// GetCommit returns the git commit the binary was built from.
func GetCommit() string {
	ensureInitialized()
	return Commit
}

// GetDate returns the build date.
func GetDate() string {
	ensureInitialized()
	return Date
}

func Info() string {
	ensureInitialized()
	return fmt.Sprintf("ga4-dashboard-tui %s (commit: %s, built: %s, %s/%s)",
		Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the client to the Data API.
func UserAgent() string {
	ensureInitialized()
	return fmt.Sprintf("ga4-dashboard-tui/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
