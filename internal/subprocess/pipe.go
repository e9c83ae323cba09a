package subprocess

import (
	"os"
	"sync"
)

// pipePair owns both ends of a single pipe(2) and guarantees that each end
// is closed at most once regardless of how many call sites race to close it
// on a failure path.
type pipePair struct {
	mu          sync.Mutex
	read, write *os.File
}

// makePipe constructs a new pipe. os.Pipe already marks both ends
// close-on-exec, which is what keeps a concurrent spawn in another
// goroutine from leaking a descriptor into an unrelated child; the child
// that is meant to inherit an end does so by dup2'ing it onto 0/1/2, which
// clears the close-on-exec flag on that fd number before execve runs.
func makePipe() (*pipePair, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, classifySpawnErrno("makePipe", err)
	}
	return &pipePair{read: r, write: w}, nil
}

// closeRead closes the read end if it is still open. Idempotent.
func (p *pipePair) closeRead() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.read == nil {
		return nil
	}
	err := p.read.Close()
	p.read = nil
	return err
}

// closeWrite closes the write end if it is still open. Idempotent.
func (p *pipePair) closeWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.write == nil {
		return nil
	}
	err := p.write.Close()
	p.write = nil
	return err
}

// closeAll releases both ends. Used by release when a piped stream must be
// unwound because a sibling stream failed to resolve.
func (p *pipePair) closeAll() {
	_ = p.closeRead()
	_ = p.closeWrite()
}

// takeRead hands ownership of the read end to the caller, leaving the pair
// unable to close it again.
func (p *pipePair) takeRead() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.read
	p.read = nil
	return f
}

// takeWrite hands ownership of the write end to the caller.
func (p *pipePair) takeWrite() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.write
	p.write = nil
	return f
}

// resolvedStdio is what the Spawner produces from a StdioDisposition: the
// fd the child inherits and, for piped dispositions, the parent-side file
// the Execution will own afterward.
//
// callerOwned distinguishes an fd the caller handed us (StdioInherit, only
// closed after spawn if they asked for that) from one the Spawner opened
// itself (/dev/null or a pipe end), which is always closed once the child
// has its own copy.
type resolvedStdio struct {
	childFD         *os.File
	parentFile      *os.File
	pair            *pipePair // non-nil only for StdioPiped, so failure cleanup can close both ends
	callerOwned     bool
	closeChildAfter bool
	sharedDevNull   bool // childFD is the Spawner's shared /dev/null handle; the devNullOpener closes it, not closeChildSide
}

// resolveStdio turns a single StdioDisposition into concrete fds. devNull
// is reused by the caller across all three dispositions so a spawn that
// discards every stream does not open /dev/null three times.
func resolveStdio(d StdioDisposition, forInput bool, devNull func() (*os.File, error)) (resolvedStdio, error) {
	switch d.Kind {
	case StdioDiscard:
		f, err := devNull()
		if err != nil {
			return resolvedStdio{}, err
		}
		return resolvedStdio{childFD: f, sharedDevNull: true}, nil

	case StdioInherit:
		if d.FD == nil {
			return resolvedStdio{}, newError("resolveStdio", InvalidConfiguration, nil)
		}
		return resolvedStdio{childFD: d.FD, callerOwned: true, closeChildAfter: d.CloseAfterSpawn}, nil

	case StdioPiped:
		pair, err := makePipe()
		if err != nil {
			return resolvedStdio{}, err
		}
		if forInput {
			// Child reads, parent writes.
			return resolvedStdio{childFD: pair.read, parentFile: pair.write, pair: pair}, nil
		}
		// Child writes, parent reads.
		return resolvedStdio{childFD: pair.write, parentFile: pair.read, pair: pair}, nil

	default:
		return resolvedStdio{}, newError("resolveStdio", InvalidConfiguration, nil)
	}
}

// release undoes resolveStdio when a sibling stream failed to resolve and
// this one must be unwound before Spawn returns. It only closes fds the
// Spawner itself opened; a caller-supplied fd is left alone.
func (r resolvedStdio) release() {
	if r.pair != nil {
		r.pair.closeAll()
		return
	}
	if !r.callerOwned && !r.sharedDevNull && r.childFD != nil {
		_ = r.childFD.Close()
	}
}

// releaseParent closes the parent-side file of a piped disposition. Used
// when the fork/exec itself fails, after the child-destined end has
// already been closed by closeChildSide.
func (r resolvedStdio) releaseParent() {
	if r.parentFile != nil {
		_ = r.parentFile.Close()
	}
}

// closeChildSide closes the parent's reference to whichever fd the child
// inherited. Called exactly once per stream after every spawn attempt,
// whether it succeeded or failed.
func closeChildSide(r resolvedStdio) {
	if r.childFD == nil || r.sharedDevNull {
		return
	}
	if r.callerOwned {
		if r.closeChildAfter {
			_ = r.childFD.Close()
		}
		return
	}
	_ = r.childFD.Close()
}
