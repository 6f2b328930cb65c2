// Package video brackets head-fix trials with a recording started and
// stopped through an external camera command.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

var ErrAlreadyRecording = errors.New("video: recording already in progress")

// PathPlaceholder in a command template is replaced by the artifact path.
const PathPlaceholder = "{path}"

// DefaultCommand records raw 256x256 frames at 30 fps until interrupted.
var DefaultCommand = []string{
	"rpicam-vid", "-t", "0", "--nopreview",
	"--width", "256", "--height", "256", "--framerate", "30",
	"--codec", "yuv420", "-o", PathPlaceholder,
}

// ArtifactName is the deterministic file name for a head-fix recording:
// M<tag>_<epoch seconds>.raw.
func ArtifactName(tag types.TagID, at time.Time) string {
	return fmt.Sprintf("M%s_%s.raw", tag, types.EpochSeconds(at))
}

// ExecRecorder runs one camera process per recording and stops it with an
// interrupt, escalating to kill after StopTimeout.
type ExecRecorder struct {
	dir         string
	command     []string
	logger      zerolog.Logger
	StopTimeout time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

func NewExecRecorder(dir string, command []string, logger zerolog.Logger) *ExecRecorder {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ExecRecorder{
		dir:         dir,
		command:     command,
		logger:      logger,
		StopTimeout: 5 * time.Second,
	}
}

func (r *ExecRecorder) Start(_ context.Context, tag types.TagID, at time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir video dir: %w", err)
	}
	path := filepath.Join(r.dir, ArtifactName(tag, at))

	args := make([]string, len(r.command))
	for i, a := range r.command {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", args[0], err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	r.cmd, r.done = cmd, done
	r.logger.Debug().Str("path", path).Int("pid", cmd.Process.Pid).Msg("video recording started")
	return path, nil
}

// Stop ends the current recording. Stopping when nothing is recording is
// a no-op.
func (r *ExecRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return nil
	}
	cmd, done := r.cmd, r.done
	r.cmd, r.done = nil, nil

	// A recorder that already exited was not stopped by us.
	select {
	case err := <-done:
		return exitedEarly(err)
	default:
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return exitedEarly(<-done)
		}
		r.logger.Warn().Err(err).Msg("video interrupt failed, killing")
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(r.StopTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		_ = cmd.Process.Kill()
		err = <-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		err = <-done
	}

	// The camera exits on the interrupt we sent; that is a clean stop.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func exitedEarly(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("video recorder exited before stop: %w", err)
}
