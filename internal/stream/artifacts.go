package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts owns the on-disk layout of stream output: one directory per key
// directly beneath a fixed root.
type Artifacts struct {
	root string
	log  *slog.Logger
}

// NewArtifacts resolves root to an absolute path and creates it if needed.
func NewArtifacts(root string, log *slog.Logger) (*Artifacts, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve hls root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create hls root: %w", err)
	}
	return &Artifacts{root: abs, log: log}, nil
}

// Root returns the absolute artifact root.
func (a *Artifacts) Root() string {
	return a.root
}

// Dir returns the directory for key without touching the filesystem.
func (a *Artifacts) Dir(key Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(a.root, string(key)), nil
}

// Prepare creates the directory for key and empties it of output left by a
// previous run. Entries that cannot be removed are logged and skipped; the
// transcoder rewrites the playlist and rotates segments regardless.
func (a *Artifacts) Prepare(key Key) (string, error) {
	dir, err := a.Dir(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stream dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read stream dir: %w", err)
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			a.log.Warn("stale artifact not removed",
				slog.String("stream_key", string(key)),
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}
	return dir, nil
}

// Resolve maps a request path below a stream directory to a regular file
// inside it. Only the last component of rel is used; an empty rel means the
// playlist. Any ".." component, backslash, or symlink leading out of the
// directory yields ErrArtifactNotFound.
func (a *Artifacts) Resolve(key Key, rel string) (string, error) {
	if key.Validate() != nil {
		return "", ErrStreamNotFound
	}
	dir := filepath.Join(a.root, string(key))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", ErrStreamNotFound
	}

	if strings.Contains(rel, `\`) {
		return "", ErrArtifactNotFound
	}
	name := PlaylistName
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "":
			continue
		case "..", ".":
			return "", ErrArtifactNotFound
		}
		name = part
	}

	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", ErrStreamNotFound
	}
	realPath, err := filepath.EvalSymlinks(filepath.Join(dir, name))
	if err != nil {
		return "", ErrArtifactNotFound
	}
	if filepath.Dir(realPath) != realDir {
		return "", ErrArtifactNotFound
	}

	info, err := os.Stat(realPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrArtifactNotFound
	}
	return realPath, nil
}

// IsNotFound reports whether err is one of the artifact lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStreamNotFound) || errors.Is(err, ErrArtifactNotFound)
}
