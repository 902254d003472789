package loader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"

	"github.com/standardbeagle/redefine/internal/types"
)

// JarFetcher serves class files from a jar archive.
type JarFetcher struct {
	path string
	zr   *zip.ReadCloser
}

// OpenJar opens the archive at path. Close releases it.
func OpenJar(path string) (*JarFetcher, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jar %s: %w", path, err)
	}
	return &JarFetcher{path: path, zr: zr}, nil
}

// Path returns the archive path.
func (j *JarFetcher) Path() string {
	return j.path
}

// Fetch implements Fetcher.
func (j *JarFetcher) Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := types.ResourceName(name)
	f, err := j.zr.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, rel, j.path)
		}
		return nil, fmt.Errorf("failed to open %s in %s: %w", rel, j.path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in %s: %w", rel, j.path, err)
	}
	return b, nil
}

// List returns the type names of every class file in the archive, sorted.
func (j *JarFetcher) List() []string {
	var names []string
	for _, f := range j.zr.File {
		if strings.HasSuffix(f.Name, types.ClassFileSuffix) && !strings.HasPrefix(f.Name, "META-INF/") {
			names = append(names, strings.TrimSuffix(f.Name, types.ClassFileSuffix))
		}
	}
	slices.Sort(names)
	return names
}

// Close releases the archive.
func (j *JarFetcher) Close() error {
	return j.zr.Close()
}
