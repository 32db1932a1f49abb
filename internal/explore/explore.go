// Package explore walks a source tree ahead of parsing and indexes what
// it finds. Exploration is the only phase that touches directory
// structure; everything downstream works from the returned snapshot, so
// archives can be extracted, walked once and cleaned up without the rest
// of the pipeline noticing.
package explore

import (
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/go-git/go-billy/v5"
)

// Entry is one explored file. IDs are dense and assigned in walk order,
// which makes them usable as bitmap positions.
type Entry struct {
	ID    uint32
	Path  string
	Parts []string
	Size  int64
}

// Dir returns the directory segments of the entry, relative to the
// exploration root.
func (e Entry) Dir() []string { return e.Parts[:len(e.Parts)-1] }

// Name returns the file name without its directory.
func (e Entry) Name() string { return e.Parts[len(e.Parts)-1] }

// Explored is the immutable snapshot of one source tree walk: every file
// found, plus an index from directory component to the set of files
// below it.
type Explored struct {
	fs      billy.Filesystem
	root    string
	entries []Entry
	all     *roaring.Bitmap

	order      []string
	components map[string]*roaring.Bitmap
}

// Explore walks root inside fsys and returns the snapshot. Directory
// entries are visited in lexical order so IDs are stable across runs.
func Explore(fsys billy.Filesystem, root string) (*Explored, error) {
	ex := &Explored{
		fs:         fsys,
		root:       root,
		all:        roaring.New(),
		components: make(map[string]*roaring.Bitmap),
	}
	if err := ex.walk(root, nil); err != nil {
		return nil, err
	}
	return ex, nil
}

func (ex *Explored) walk(dir string, parts []string) error {
	infos, err := ex.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("explore %s: %w", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	for _, info := range infos {
		name := info.Name()
		full := ex.fs.Join(dir, name)
		if info.IsDir() {
			child := append(append([]string(nil), parts...), name)
			if err := ex.walk(full, child); err != nil {
				return err
			}
			continue
		}
		id := uint32(len(ex.entries))
		ex.entries = append(ex.entries, Entry{
			ID:    id,
			Path:  full,
			Parts: append(append([]string(nil), parts...), name),
			Size:  info.Size(),
		})
		ex.all.Add(id)
		for _, part := range parts {
			ex.addComponent(part, id)
		}
	}
	return nil
}

func (ex *Explored) addComponent(name string, id uint32) {
	bm, ok := ex.components[name]
	if !ok {
		bm = roaring.New()
		ex.components[name] = bm
		ex.order = append(ex.order, name)
	}
	bm.Add(id)
}

// Entries returns every explored file in walk order.
func (ex *Explored) Entries() []Entry { return ex.entries }

// Len returns the number of explored files.
func (ex *Explored) Len() int { return len(ex.entries) }

// Entry returns the file with the given ID.
func (ex *Explored) Entry(id uint32) Entry { return ex.entries[id] }

// Open opens an explored file for reading.
func (ex *Explored) Open(e Entry) (io.ReadCloser, error) {
	return ex.fs.Open(e.Path)
}

// All returns the set of every explored file ID. The caller owns the
// returned bitmap.
func (ex *Explored) All() *roaring.Bitmap { return ex.all.Clone() }

// ComponentKeys returns the distinct directory names along explored
// paths that match re, in first-encounter order.
func (ex *Explored) ComponentKeys(re *regexp.Regexp) []string {
	var out []string
	for _, name := range ex.order {
		if re.MatchString(name) {
			out = append(out, name)
		}
	}
	return out
}

// FilesWith returns the IDs of files whose path contains every one of
// the given directory components. Unknown components yield the empty
// set. The caller owns the returned bitmap.
func (ex *Explored) FilesWith(components []string) *roaring.Bitmap {
	out := ex.all.Clone()
	for _, name := range components {
		bm, ok := ex.components[name]
		if !ok {
			return roaring.New()
		}
		out.And(bm)
	}
	return out
}
