package procinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by a Lookup when the process no longer exists.
var ErrNotFound = errors.New("process not found")

// Info is what the OS reports about a running process.
type Info struct {
	FullPath string
	Argv     []string
	// Comm is the kernel's short command name, used when argv is empty.
	Comm string
}

// Lookup translates a pid into process information. It may block on the OS.
type Lookup interface {
	LookupProcess(ctx context.Context, pid uint32) (Info, error)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(ctx context.Context, pid uint32) (Info, error)

func (f LookupFunc) LookupProcess(ctx context.Context, pid uint32) (Info, error) {
	return f(ctx, pid)
}

// Identity is the cached, human-readable view of a pid. An identity with
// Resolved=false is the sentinel cached for pids that could not be looked up.
type Identity struct {
	PID        uint32
	AppName    string
	FullPath   string
	Argv       []string
	ResolvedAt time.Time
	Resolved   bool
	Err        string
}

const unknownApp = "Unknown"

func newIdentity(pid uint32, info Info, at time.Time) Identity {
	id := Identity{PID: pid, FullPath: info.FullPath, Argv: info.Argv, ResolvedAt: at, Resolved: true}
	switch {
	case len(info.Argv) > 0:
		id.AppName = baseName(info.Argv[0])
		if id.FullPath == "" {
			id.FullPath = info.Argv[0]
		}
	case info.FullPath != "":
		id.AppName = baseName(info.FullPath)
	case info.Comm != "":
		id.AppName = info.Comm
	default:
		id.AppName = unknownApp
	}
	return id
}

func unresolved(pid uint32, err error, at time.Time) Identity {
	return Identity{PID: pid, AppName: unknownApp, ResolvedAt: at, Err: err.Error()}
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// Display renders "app:pid", or fallback when nothing useful is known.
func (id Identity) Display(fallback string) string {
	if !id.Resolved || id.AppName == unknownApp {
		return fallback
	}
	return fmt.Sprintf("%s:%d", id.AppName, id.PID)
}
