package procinfo

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// ProcfsLookup reads process information from a procfs mount.
type ProcfsLookup struct {
	fs procfs.FS
}

func NewProcfsLookup(mountPoint string) (*ProcfsLookup, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, errors.Wrapf(err, "open procfs at %s", mountPoint)
	}
	return &ProcfsLookup{fs: fs}, nil
}

func (l *ProcfsLookup) LookupProcess(ctx context.Context, pid uint32) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	p, err := l.fs.Proc(int(pid))
	if err != nil {
		return Info{}, wrapProcErr(err, pid, "open")
	}

	argv, err := p.CmdLine()
	if err != nil {
		return Info{}, wrapProcErr(err, pid, "read cmdline")
	}

	var info Info
	info.Argv = argv
	// the executable link is unreadable for other users' processes; argv
	// usually still names it
	if exe, err := p.Executable(); err == nil {
		info.FullPath = exe
	}
	if len(argv) == 0 {
		if comm, err := p.Comm(); err == nil {
			info.Comm = comm
		}
	}
	return info, nil
}

func wrapProcErr(err error, pid uint32, what string) error {
	if stderrors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNotFound, "pid %d", pid)
	}
	return errors.Wrapf(err, "%s pid %d", what, pid)
}
