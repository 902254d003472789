package version

import (
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Set with -ldflags "-X github.com/standardbeagle/redefine/internal/version.GitCommit=..."
var (
	Version   = "0.3.0"
	BuildDate = "development"
	GitCommit = "unknown"
)

type build struct {
	commit string
	date   string
	id     string
}

var (
	current     build
	currentOnce sync.Once
)

func read() build {
	currentOnce.Do(func() {
		current = readBuild(GitCommit, BuildDate)
	})
	return current
}

// readBuild fills in whatever -ldflags left unset from the VCS stamp the Go
// toolchain records, and hashes the stamp into the build id.
func readBuild(commit, date string) build {
	b := build{commit: commit, date: date}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		b.id = Version + "-" + commit
		return b
	}

	h := xxhash.New()
	h.WriteString(info.GoVersion)
	h.WriteString(info.Main.Path)
	h.WriteString(info.Main.Version)
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.commit == "unknown" && len(s.Value) >= 12 {
				b.commit = s.Value[:12]
			}
		case "vcs.time":
			if b.date == "development" {
				b.date = s.Value
			}
		case "vcs.modified":
		default:
			continue
		}
		h.WriteString(s.Key)
		h.WriteString(s.Value)
	}
	b.id = strconv.FormatUint(h.Sum64(), 16)
	return b
}

// Info returns the release version.
func Info() string {
	return Version
}

// FullInfo is the --version line.
func FullInfo() string {
	b := read()
	return "redefine " + Version + " (commit: " + b.commit + ", built: " + b.date + ")"
}

// BuildID identifies the binary. MCP servers from different builds report
// different ids.
func BuildID() string {
	return read().id
}
