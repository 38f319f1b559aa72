package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// mtimes may deviate up to 2 seconds across file systems (FAT granularity).
const MtimeToleranceMicros = 2_000_000

const (
	DirPermissions  = 0o755
	FilePermissions = 0o644
)

// Sanitize strips characters that are invalid in file names and trims
// trailing dots and spaces.
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune("<>:\"/\\|?*", r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(mapped, ". ")
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, DirPermissions)
}

// MoveFile renames src to dst, falling back to copy+delete across devices.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Trash moves path into trashDir instead of deleting it outright. A short
// unique prefix avoids name collisions between trashed files.
func Trash(path, trashDir string) error {
	if err := EnsureDir(trashDir); err != nil {
		return err
	}
	target := filepath.Join(trashDir, uuid.NewString()[:8]+"-"+filepath.Base(path))
	return MoveFile(path, target)
}

// GetMtime returns the modification time of path in unix microseconds, or 0
// if the file does not exist.
func GetMtime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixMicro()
}

// MtimeInSync reports whether two mtimes agree within the cross-filesystem
// tolerance.
func MtimeInSync(a, b int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < MtimeToleranceMicros
}

func DeleteFolderIfEmpty(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) == 0 {
		return os.Remove(dirPath)
	}
	return nil
}

// HashFile returns the hex sha256 of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FilesIdentical compares two files by size first, then content hash.
func FilesIdentical(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	ha, err := HashFile(a)
	if err != nil {
		return false, err
	}
	hb, err := HashFile(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

// NextUniqueDir returns path if it does not exist yet, otherwise the first
// "path (N)" that doesn't.
func NextUniqueDir(path string) string {
	candidate := path
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)", path, n)
	}
}

func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
