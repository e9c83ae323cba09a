package subprocess

import "os"

// devNullOpener lazily opens /dev/null at most once per Spawn call, no
// matter how many of the three StdioDiscard dispositions ask for it, and
// closes that single handle exactly once when the Spawner is done with it.
type devNullOpener struct {
	file *os.File
}

func newDevNullOpener() *devNullOpener { return &devNullOpener{} }

func (d *devNullOpener) open() (*os.File, error) {
	if d.file != nil {
		return d.file, nil
	}
	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, classifySpawnErrno("openDevNull", err)
	}
	d.file = f
	return f, nil
}

// close releases the handle opened by open, if any. Safe to call even
// when open was never called.
func (d *devNullOpener) close() {
	if d.file == nil {
		return
	}
	_ = d.file.Close()
	d.file = nil
}
