package supervise

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

// statusSize is the length of a daemontools supervise/status record:
// 12 bytes TAI64N timestamp, 4 bytes pid (little endian), paused flag,
// want byte.
const statusSize = 18

var controlBytes = map[Command]string{
	CommandUp:   "u",
	CommandDown: "d",
	// Make sure the service is wanted up, then TERM it so supervise
	// brings it back: one atomic restart.
	CommandRestart: "ut",
	CommandTerm:    "t",
}

// Daemontools controls services below a daemontools/runit service directory.
type Daemontools struct {
	dir string
}

// NewDaemontools returns a backend for the service directory dir (usually /service).
func NewDaemontools(dir string) *Daemontools {
	return &Daemontools{dir: dir}
}

// Dir returns the service directory.
func (d *Daemontools) Dir() string {
	return d.dir
}

// Exists reports whether <dir>/<name> exists.
func (d *Daemontools) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(d.dir, name))
	return err == nil && info.IsDir()
}

// List returns all service directories, sorted.
func (d *Daemontools) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.dir, err)
	}
	var names []string
	for _, e := range entries {
		if d.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Command writes the control characters for cmd to supervise/control.
// The FIFO is opened non-blocking; if no supervise process holds it open
// the service is not supervised.
func (d *Daemontools) Command(name string, cmd Command) error {
	ctl, ok := controlBytes[cmd]
	if !ok {
		return fmt.Errorf("unsupported command %q", cmd)
	}

	path := filepath.Join(d.dir, name, "supervise", "control")
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrNotSupervised)
		}
		return fmt.Errorf("opening control for %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(ctl); err != nil {
		return fmt.Errorf("writing control for %s: %w", name, err)
	}
	return nil
}

// Status decodes supervise/status.
func (d *Daemontools) Status(_ context.Context, name string) (State, error) {
	path := filepath.Join(d.dir, name, "supervise", "status")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, fmt.Errorf("%s: %w", name, ErrNotSupervised)
		}
		return State{}, fmt.Errorf("reading status for %s: %w", name, err)
	}
	return decodeStatus(name, data)
}

func decodeStatus(name string, data []byte) (State, error) {
	if len(data) < statusSize {
		return State{}, fmt.Errorf("status for %s: short record (%d bytes)", name, len(data))
	}
	pid := int(binary.LittleEndian.Uint32(data[12:16]))
	st := State{
		Name: name,
		Up:   pid != 0,
		PID:  pid,
	}
	switch data[17] {
	case 'u':
		st.Want = "up"
	case 'd':
		st.Want = "down"
	}
	return st, nil
}

// Close is a no-op; daemontools keeps running without us.
func (d *Daemontools) Close() error {
	return nil
}
