package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/redefine/internal/types"
)

// DefaultInclude matches every class file below the root.
const DefaultInclude = "**/*" + types.ClassFileSuffix

// DirFetcher serves class files from a directory tree laid out by package,
// as a compiler output directory is.
type DirFetcher struct {
	fsys    fs.FS
	root    string
	include []string
	exclude []string
}

// NewDirFetcher serves root. include and exclude are doublestar patterns
// over slash-separated paths relative to root; an empty include means
// DefaultInclude.
func NewDirFetcher(root string, include, exclude []string) (*DirFetcher, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid classpath pattern %q", p)
		}
	}
	if len(include) == 0 {
		include = []string{DefaultInclude}
	}
	return &DirFetcher{fsys: os.DirFS(root), root: root, include: include, exclude: exclude}, nil
}

// Root returns the directory served.
func (d *DirFetcher) Root() string {
	return d.root
}

// Matches reports whether the relative resource path rel is served.
func (d *DirFetcher) Matches(rel string) bool {
	for _, p := range d.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	for _, p := range d.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Fetch implements Fetcher. The loader argument is ignored; register one
// DirFetcher per loader.
func (d *DirFetcher) Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := types.ResourceName(name)
	if !d.Matches(rel) {
		return nil, fmt.Errorf("%w: %s excluded from %s", ErrNotFound, rel, d.root)
	}
	b, err := fs.ReadFile(d.fsys, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, rel, d.root)
		}
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return b, nil
}

// List returns the type names of every served class file, sorted.
func (d *DirFetcher) List() ([]string, error) {
	var names []string
	err := fs.WalkDir(d.fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(p, types.ClassFileSuffix) || !d.Matches(p) {
			return nil
		}
		names = append(names, strings.TrimSuffix(p, types.ClassFileSuffix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list classes in %s: %w", d.root, err)
	}
	slices.Sort(names)
	return names, nil
}
