// Package security checks class files named by untrusted callers before
// they are read into memory.
package security

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/redefine/internal/classfile"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/types"
)

// DefaultMaxClassSizeKB bounds a single class file.
const DefaultMaxClassSizeKB = 16 * 1024

// Oldest class file major version (JDK 1.0.2).
const minMajorVersion = 45

// headerSize covers magic, minor and major version.
const headerSize = 8

var (
	ErrOutsideRoot  = errors.New("security: path escapes the project root")
	ErrTooLarge     = errors.New("security: class file too large")
	ErrNotClassFile = errors.New("security: not a class file")
)

// FileValidator validates class files before loading them fully.
type FileValidator struct {
	MaxSize int64 // bytes
	// Root confines paths when set.
	Root string
}

func NewFileValidator(maxKB int64) *FileValidator {
	if maxKB <= 0 {
		maxKB = DefaultMaxClassSizeKB
	}
	return &FileValidator{MaxSize: maxKB * 1024}
}

// Within returns a copy of fv that rejects paths outside root.
func (fv *FileValidator) Within(root string) *FileValidator {
	c := *fv
	c.Root = root
	return &c
}

// Resolve anchors a relative path at Root and checks containment.
func (fv *FileValidator) Resolve(path string) (string, error) {
	if fv.Root == "" {
		return filepath.Clean(path), nil
	}
	root, err := filepath.Abs(fv.Root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	// Symlinks may point anywhere; judge the real locations when they exist.
	realRoot, realPath := root, path
	if r, err := filepath.EvalSymlinks(root); err == nil {
		realRoot = r
	}
	if p, err := filepath.EvalSymlinks(path); err == nil {
		realPath = p
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return path, nil
}

// ValidateClassFile checks suffix, size and header of the file at path
// without reading the whole file.
func (fv *FileValidator) ValidateClassFile(path string) error {
	if !strings.HasSuffix(path, types.ClassFileSuffix) {
		return fmt.Errorf("%w: %s has no %s suffix", ErrNotClassFile, path, types.ClassFileSuffix)
	}
	info, err := os.Stat(path)
	if err != nil {
		return rerrors.NewFileError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotClassFile, path)
	}
	if fv.MaxSize > 0 && info.Size() > fv.MaxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, info.Size(), fv.MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return rerrors.NewFileError("open", path, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return rerrors.NewFileError("read", path, err)
	}
	if err := CheckHeader(header[:n]); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ReadClassFile resolves, validates and reads path.
func (fv *FileValidator) ReadClassFile(path string) ([]byte, error) {
	resolved, err := fv.Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := fv.ValidateClassFile(resolved); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return nil, rerrors.NewFileError("read", resolved, err)
	}
	return b, nil
}

// CheckHeader verifies the magic word and major version of a class file
// header.
func CheckHeader(header []byte) error {
	if len(header) < headerSize {
		return fmt.Errorf("%w: %w", ErrNotClassFile, classfile.ErrTruncated)
	}
	if binary.BigEndian.Uint32(header) != classfile.Magic {
		return fmt.Errorf("%w: %w", ErrNotClassFile, classfile.ErrBadMagic)
	}
	if major := binary.BigEndian.Uint16(header[6:]); major < minMajorVersion {
		return fmt.Errorf("%w: unsupported major version %d", ErrNotClassFile, major)
	}
	return nil
}
