// Package analysis holds the built-in entity producers: dependency
// manifests, service detection, code structure, security configuration,
// tools, tests and documentation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultMaxFileSize caps the bytes read from any single file
const DefaultMaxFileSize = 1 << 20

// ErrFileTooLarge is returned when a file exceeds the walker's size cap
var ErrFileTooLarge = errors.New("file too large")

// skipDirs are never descended into, whatever .gitignore says
var skipDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	"venv":          true,
	".venv":         true,
	"__pycache__":   true,
	".next":         true,
	".nuxt":         true,
	"dist":          true,
	"build":         true,
	"out":           true,
	"target":        true,
	".cache":        true,
	".parcel-cache": true,
	"coverage":      true,
	".nyc_output":   true,
	".pytest_cache": true,
	".tox":          true,
	".idea":         true,
	".vscode":       true,
}

var generatedSuffixes = []string{
	".min.js",
	".bundle.js",
	".generated.ts",
	".generated.js",
	".pb.go",
	".pb.js",
	".pb.ts",
	"_pb.js",
	"_pb.ts",
}

// File is one repository file, addressed by its slash-separated path
// relative to the repository root.
type File struct {
	Path string
	Abs  string
	Size int64
}

// Walker lists the analyzable files of a repository
type Walker struct {
	root        string
	maxFileSize int64
	ignore      *ignore.GitIgnore
}

// NewWalker creates a walker rooted at root. The root .gitignore is honored
// when present.
func NewWalker(root string, maxFileSize int64) *Walker {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	w := &Walker{root: root, maxFileSize: maxFileSize}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		w.ignore = gi
	}
	return w
}

// Root returns the repository root
func (w *Walker) Root() string {
	return w.root
}

// Files returns every non-ignored regular file, sorted by path
func (w *Walker) Files(ctx context.Context) ([]File, error) {
	var files []File
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || w.ignored(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.ignored(rel) || isGenerated(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		files = append(files, File{Path: rel, Abs: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", w.root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the content of a file, refusing files over the size cap
func (w *Walker) Read(f File) ([]byte, error) {
	if f.Size > w.maxFileSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", f.Path, ErrFileTooLarge, f.Size)
	}
	fh, err := os.Open(f.Abs)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return io.ReadAll(io.LimitReader(fh, w.maxFileSize+1))
}

// ReadPath reads a file by its relative path
func (w *Walker) ReadPath(rel string) ([]byte, error) {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	return w.Read(File{Path: rel, Abs: abs, Size: info.Size()})
}

func (w *Walker) ignored(rel string) bool {
	return w.ignore != nil && w.ignore.MatchesPath(rel)
}

func isGenerated(rel string) bool {
	for _, suffix := range generatedSuffixes {
		if strings.HasSuffix(rel, suffix) {
			return true
		}
	}
	return false
}

// lineOf returns the 1-based line containing byte offset off
func lineOf(content []byte, off int) int {
	if off > len(content) {
		off = len(content)
	}
	return strings.Count(string(content[:off]), "\n") + 1
}
