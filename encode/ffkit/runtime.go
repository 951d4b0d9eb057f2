package ffkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Runtime is a resolved ffmpeg installation: the binary path plus the lazily
// probed encoder set.
type Runtime struct {
	Path string

	probeOnce sync.Once
	encoders  map[string]bool
	probeErr  error
}

// Encoders returns the video encoder set, probing the binary on first use.
func (r *Runtime) Encoders(ctx context.Context) (map[string]bool, error) {
	r.probeOnce.Do(func() {
		r.encoders, r.probeErr = ProbeEncoders(ctx, r.Path)
	})
	return r.encoders, r.probeErr
}

// Supports reports whether the runtime has the named video encoder. Probe
// failures read as unsupported; the caller's guaranteed fallback covers them.
func (r *Runtime) Supports(ctx context.Context, encoder string) bool {
	encs, err := r.Encoders(ctx)
	if err != nil {
		return false
	}
	return encs[encoder]
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
	defaultErr  error
)

// Default resolves the process-wide ffmpeg runtime, init-once: first
// exec.LookPath, then, only when fetchURL is non-empty, at most one
// download of a static build into the user cache directory. The outcome,
// success or failure, is cached for the life of the process so later callers
// fail fast instead of retrying unboundedly.
//
// The download has no timeout; this mirrors the pipeline's documented
// no-timeout posture for external capabilities.
func Default(ctx context.Context, fetchURL string, logger *slog.Logger) (*Runtime, error) {
	defaultOnce.Do(func() {
		defaultRT, defaultErr = resolve(ctx, fetchURL, logger)
	})
	return defaultRT, defaultErr
}

func resolve(ctx context.Context, fetchURL string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		logger.Debug("ffkit: using ffmpeg from PATH", "path", path)
		return &Runtime{Path: path}, nil
	}

	if fetchURL == "" {
		return nil, fmt.Errorf("ffkit: ffmpeg not found in PATH and no fetch URL configured")
	}

	path, err := fetchBinary(ctx, fetchURL, logger)
	if err != nil {
		return nil, fmt.Errorf("ffkit: ffmpeg not in PATH and remote fetch failed: %w", err)
	}
	return &Runtime{Path: path}, nil
}

// fetchBinary downloads a static ffmpeg build to the user cache dir. Called
// at most once per process via Default.
func fetchBinary(ctx context.Context, url string, logger *slog.Logger) (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache dir: %w", err)
	}
	dir := filepath.Join(cacheDir, "vectormotion")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	dest := filepath.Join(dir, "ffmpeg")

	if _, err := os.Stat(dest); err == nil {
		logger.Debug("ffkit: using cached ffmpeg", "path", dest)
		return dest, nil
	}

	logger.Info("ffkit: fetching ffmpeg", "url", url, "dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "ffmpeg-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}
