// Package fsutil provides the filesystem primitives the engine relies
// on: all-or-nothing file writes and workspace-confined path resolution.
package fsutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact describes a file produced by a write, for reporting.
type Artifact struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// AtomicWrite writes data so that a reader never observes a partial
// file: write to a hidden temp name in the same directory, fsync,
// rename over the target, fsync the directory. Parent directories are
// created as needed.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath, err := tempPath(path)
	if err != nil {
		return err
	}

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	renamed := false
	defer func() {
		tmp.Close()
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// AtomicWriteJSON atomically writes v as indented JSON with a trailing
// newline. Meant for engine state files, hence the restrictive mode.
func AtomicWriteJSON(path string, v any) error {
	if v == nil {
		return fmt.Errorf("cannot write nil value")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')
	return AtomicWrite(path, data, 0o600)
}

// WriteWorkspaceFile resolves relative inside root, writes content
// atomically, and returns artifact metadata for reporting.
func WriteWorkspaceFile(root, relative string, content []byte) (Artifact, error) {
	full, err := ResolvePath(root, relative)
	if err != nil {
		return Artifact{}, err
	}
	if err := AtomicWrite(full, content, 0o644); err != nil {
		return Artifact{}, err
	}
	sum := sha256.Sum256(content)
	return Artifact{
		Path:   relative,
		SHA256: "sha256:" + hex.EncodeToString(sum[:]),
		Size:   int64(len(content)),
	}, nil
}

// ResolvePath validates a workspace-relative path and returns its
// absolute form. Absolute inputs, traversal outside root, and symlinks
// escaping root are all rejected.
func ResolvePath(root, relative string) (string, error) {
	rootAbs, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("absolute path not allowed: %s", relative)
	}

	clean := filepath.Clean(filepath.Join(rootAbs, relative))
	rel, err := filepath.Rel(rootAbs, clean)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", relative, err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("path escapes workspace: %s", relative)
	}

	// if the target already exists, make sure a symlink does not lead
	// out of the workspace
	if _, err := os.Lstat(clean); err == nil {
		resolved, err := filepath.EvalSymlinks(clean)
		if err != nil {
			return "", fmt.Errorf("resolve symlinks for %s: %w", relative, err)
		}
		resolvedRel, err := filepath.Rel(rootAbs, resolved)
		if err != nil || escapes(resolvedRel) {
			return "", fmt.Errorf("symlink escapes workspace: %s", relative)
		}
		return resolved, nil
	}

	return clean, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// tempPath builds a hidden sibling name so the rename stays on one
// filesystem: .<base>.tmp.<pid>.<rand>
func tempPath(path string) (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("random temp suffix: %w", err)
	}
	name := fmt.Sprintf(".%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), hex.EncodeToString(buf[:]))
	return filepath.Join(filepath.Dir(path), name), nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
