package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPrefix is the leading part of every temp file name created next to an
// atomically written path. Orphans left by a crash start with it.
const TempPrefix = ".tmp-"

// PendingFile is fully written and synced content waiting to be renamed over
// its destination.
type PendingFile struct {
	path    string
	tmpName string
	done    bool
}

// StageFile streams content into a hidden temp file next to path and syncs it.
// Nothing at path changes until Commit. On error the temp file is removed.
func StageFile(path string, perm os.FileMode, write func(w io.Writer) error) (*PendingFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return nil, fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", tmpName, err)
	}
	ok = true

	return &PendingFile{path: path, tmpName: tmpName}, nil
}

func (p *PendingFile) Path() string {
	return p.path
}

// Commit renames the staged content over the destination.
func (p *PendingFile) Commit() error {
	if p.done {
		return fmt.Errorf("%s already committed or discarded", p.path)
	}
	if err := os.Rename(p.tmpName, p.path); err != nil {
		return fmt.Errorf("rename %s: %w", p.tmpName, err)
	}
	p.done = true
	return syncDir(filepath.Dir(p.path))
}

// Discard removes the staged content. It is a no-op after Commit.
func (p *PendingFile) Discard() {
	if p.done {
		return
	}
	p.done = true
	_ = os.Remove(p.tmpName)
}

// WriteFileAtomic stages content and renames it over path. A crash at any
// point leaves either the old file or the new one, plus possibly an orphaned
// TempPrefix file, never a truncated path.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	pending, err := StageFile(path, perm, write)
	if err != nil {
		return err
	}
	if err := pending.Commit(); err != nil {
		pending.Discard()
		return err
	}
	return nil
}

func WriteBytesAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteFileAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}
