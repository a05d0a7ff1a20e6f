package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/plugin-publisher/internal/logger"
)

// MarkerFilename marks that a publish run is in progress for the output directory.
const MarkerFilename = ".plugin-publisher.lock"

var errAlreadyRunning = errors.New("another publish run is in progress")

// runGuard owns the marker file for the duration of a run.
type runGuard struct {
	path string
}

// acquireGuard creates the marker in dir, refusing when a live process still owns it.
// Markers left by processes that are gone are removed.
func acquireGuard(ctx context.Context, dir string) (*runGuard, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	markerPath := filepath.Join(dir, MarkerFilename)

	running, err := isPublisherRunningNow(ctx, markerPath)
	if err != nil {
		return nil, err
	}

	if running {
		return nil, fmt.Errorf("%w: %s", errAlreadyRunning, markerPath)
	}

	marker, err := os.OpenFile(filepath.Clean(markerPath), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", errAlreadyRunning, markerPath)
		}

		return nil, fmt.Errorf("create run marker: %w", err)
	}

	_, err = fmt.Fprintf(marker, "%d %s\n", os.Getpid(), currentExecutable())
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(markerPath)
		return nil, fmt.Errorf("write run marker: %w", err)
	}

	return &runGuard{path: markerPath}, nil
}

// release removes the marker.
func (g *runGuard) release(ctx context.Context) {
	if g == nil {
		return
	}

	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", g.path, "error", err)
	}
}

// isPublisherRunningNow inspects an existing marker and removes it when its owner is gone.
func isPublisherRunningNow(ctx context.Context, markerPath string) (bool, error) {
	contents, err := os.ReadFile(filepath.Clean(markerPath))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("read run marker: %w", err)
	}

	pid, executable := parseMarker(string(contents))
	if pid > 0 && pid != os.Getpid() {
		process, findErr := ps.FindProcess(pid)
		if findErr == nil && process != nil && (executable == "" || process.Executable() == executable) {
			logger.InfoKV(ctx, "Publish run in progress", "pid", pid, "executable", executable)
			return true, nil
		}
	}

	logger.InfoKV(ctx, "Removing stale run marker", "path", markerPath, "pid", pid)

	if err = os.Remove(markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove stale run marker: %w", err)
	}

	return false, nil
}

// parseMarker splits "pid executable"; malformed content yields pid 0.
func parseMarker(contents string) (int, string) {
	fields := strings.Fields(contents)
	if len(fields) == 0 {
		return 0, ""
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, ""
	}

	return pid, strings.Join(fields[1:], " ")
}

// currentExecutable returns the executable name as the process table reports it.
func currentExecutable() string {
	if process, err := ps.FindProcess(os.Getpid()); err == nil && process != nil {
		return process.Executable()
	}

	return filepath.Base(os.Args[0])
}
