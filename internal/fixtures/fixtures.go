// Package fixtures serves CoT example documents from a directory.
//
// The embedded set covers the common ATAK message shapes (marker, geo-fence,
// range and bearing, route, drawn shape) plus plain tracks. Any other
// directory of .cot files can be served through NewSet with os.DirFS.
package fixtures

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"strings"

	"github.com/samber/lo"
)

// Ext is the file extension of CoT documents.
const Ext = ".cot"

//go:embed examples/*.cot examples/malformed/*.cot
var embedded embed.FS

// ErrNotFound is returned by Get for an unknown fixture name.
var ErrNotFound = errors.New("fixtures: not found")

// Fixture is one named CoT document. Name is the file name without Ext.
type Fixture struct {
	Name string
	Text string
}

// Set is a finite, restartable collection of fixtures backed by one
// directory. Files are read lazily on every iteration.
type Set struct {
	fsys fs.FS
	dir  string
}

// NewSet serves the .cot files directly inside dir of fsys.
func NewSet(fsys fs.FS, dir string) Set {
	return Set{fsys: fsys, dir: dir}
}

// Examples returns the embedded well-formed examples.
func Examples() Set {
	return NewSet(embedded, "examples")
}

// Malformed returns embedded documents that no strict XML parser accepts.
func Malformed() Set {
	return NewSet(embedded, "examples/malformed")
}

// Names lists the fixture names in lexical order.
func (s Set) Names() ([]string, error) {
	entries, err := s.entries()
	if err != nil {
		return nil, err
	}
	return lo.Map(entries, func(e fs.DirEntry, _ int) string {
		return strings.TrimSuffix(e.Name(), Ext)
	}), nil
}

// All yields every fixture in lexical order. A read failure is yielded
// with the fixture name set and iteration continues with the next file.
func (s Set) All() iter.Seq2[Fixture, error] {
	return func(yield func(Fixture, error) bool) {
		entries, err := s.entries()
		if err != nil {
			yield(Fixture{}, err)
			return
		}
		for _, e := range entries {
			fx, err := s.read(e.Name())
			if !yield(fx, err) {
				return
			}
		}
	}
}

// Get returns the fixture called name.
func (s Set) Get(name string) (Fixture, error) {
	fx, err := s.read(name + Ext)
	if errors.Is(err, fs.ErrNotExist) {
		return Fixture{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fx, err
}

func (s Set) entries() ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("fixtures: read %s: %w", s.dir, err)
	}
	// fs.ReadDir already sorts by file name.
	return lo.Filter(entries, func(e fs.DirEntry, _ int) bool {
		return e.Type().IsRegular() && path.Ext(e.Name()) == Ext
	}), nil
}

func (s Set) read(file string) (Fixture, error) {
	name := strings.TrimSuffix(file, Ext)
	data, err := fs.ReadFile(s.fsys, path.Join(s.dir, file))
	if err != nil {
		return Fixture{Name: name}, err
	}
	return Fixture{Name: name, Text: string(data)}, nil
}
