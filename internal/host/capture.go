package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNoGrabber means no screenshot command was configured.
var ErrNoGrabber = errors.New("no screenshot command configured")

// Grabber takes screenshots by invoking a host command that writes a PNG
// to the path given as its last argument, e.g. "scrot" on X11 or
// "screencapture -x" on macOS.
type Grabber struct {
	command []string
	tmpDir  string
}

// NewGrabber creates a grabber around command. An empty command produces a
// grabber whose Screenshot always fails with ErrNoGrabber.
func NewGrabber(command []string) *Grabber {
	return &Grabber{command: command, tmpDir: os.TempDir()}
}

// Screenshot captures the screen and returns PNG bytes.
func (g *Grabber) Screenshot(ctx context.Context) ([]byte, error) {
	if len(g.command) == 0 {
		return nil, ErrNoGrabber
	}

	out := filepath.Join(g.tmpDir, fmt.Sprintf("grab-%d.png", os.Getpid()))
	defer os.Remove(out)

	args := append(append([]string{}, g.command[1:]...), out)
	cmd := exec.CommandContext(ctx, g.command[0], args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screenshot command failed: %w: %s", err, output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return data, nil
}
