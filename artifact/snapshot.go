// Package artifact associates sequence entries with the structure and
// score files a folding run left behind.
//
// Artifacts are named <prefix><tag>_<entry>_<file><ext>, e.g.
// folded_3_0.pdb for entry 3 of the first sequence file. A Snapshot of
// every candidate path is taken once per collection run and then only
// read.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// ErrPoolMismatch is returned when the number of structure files
// differs from the number of score files.
var ErrPoolMismatch = errors.New("mismatched structure and score pools")

// Scheme describes how artifact files are named.
type Scheme struct {
	StructurePrefix string `yaml:"structure_prefix"`
	StructureExt    string `yaml:"structure_ext"`
	ScorePrefix     string `yaml:"score_prefix"`
	ScoreExt        string `yaml:"score_ext"`
}

// DefaultScheme matches folded_*.pdb structures and tmp_*.csv scores.
func DefaultScheme() Scheme {
	return Scheme{
		StructurePrefix: "folded_",
		StructureExt:    ".pdb",
		ScorePrefix:     "tmp_",
		ScoreExt:        ".csv",
	}
}

// StructureName is the file name the fold task gives the structure
// of entry in sequence file fileIndex.
func (s Scheme) StructureName(entry, fileIndex int) string {
	return fmt.Sprintf("%s%d_%d%s", s.StructurePrefix, entry, fileIndex, s.StructureExt)
}

// ScoreName is the score table counterpart of StructureName.
func (s Scheme) ScoreName(entry, fileIndex int) string {
	return fmt.Sprintf("%s%d_%d%s", s.ScorePrefix, entry, fileIndex, s.ScoreExt)
}

type pattern struct {
	member *regexp.Regexp
	order  *regexp.Regexp
}

func newPattern(prefix, ext string, fileIndex int) pattern {
	ext = regexp.QuoteMeta(ext)
	return pattern{
		member: regexp.MustCompile(fmt.Sprintf(`^%s.*_%d%s$`, regexp.QuoteMeta(prefix), fileIndex, ext)),
		order:  regexp.MustCompile(fmt.Sprintf(`_(\d+)_\d+%s$`, ext)),
	}
}

type keyed struct {
	path string
	key  int
}

// filter returns the paths belonging to the pattern's file index,
// ordered by their entry token.
func (p pattern) filter(paths []string) []string {
	var matched []keyed
	for _, path := range paths {
		base := filepath.Base(path)
		if !p.member.MatchString(base) {
			continue
		}
		m := p.order.FindStringSubmatch(base)
		if m == nil {
			log.Debugf("no entry token in %s, skipping", path)
			continue
		}
		key, err := strconv.Atoi(m[1])
		if err != nil {
			log.Debugf("entry token of %s out of range, skipping", path)
			continue
		}
		matched = append(matched, keyed{path: path, key: key})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].key < matched[j].key
	})
	result := make([]string, len(matched))
	for i, m := range matched {
		result[i] = m.path
	}
	return result
}

// Snapshot is an immutable view of the artifact pools found by a scan.
type Snapshot struct {
	scheme     Scheme
	structures []string
	scores     []string
}

// NewSnapshot checks the pool sizes and copies the paths.
func NewSnapshot(scheme Scheme, structures, scores []string) (*Snapshot, error) {
	if len(structures) != len(scores) {
		return nil, fmt.Errorf(
			"%w: %d structure files, %d score files",
			ErrPoolMismatch,
			len(structures),
			len(scores),
		)
	}
	return &Snapshot{
		scheme:     scheme,
		structures: append([]string(nil), structures...),
		scores:     append([]string(nil), scores...),
	}, nil
}

// Len is the size of each pool.
func (s *Snapshot) Len() int {
	return len(s.structures)
}

// Select returns the artifacts of sequence file fileIndex in entry order.
func (s *Snapshot) Select(fileIndex int) Selection {
	return Selection{
		Structures: newPattern(s.scheme.StructurePrefix, s.scheme.StructureExt, fileIndex).filter(s.structures),
		Scores:     newPattern(s.scheme.ScorePrefix, s.scheme.ScoreExt, fileIndex).filter(s.scores),
	}
}

// Selection holds the ordered artifact paths of one sequence file.
// An empty path marks a gap.
type Selection struct {
	Structures []string
	Scores     []string
}

// Set is the pair of artifact paths for one entry. Empty means absent.
type Set struct {
	StructurePath string
	ScorePath     string
}

// HasStructure reports whether a structure file was matched.
func (s Set) HasStructure() bool { return s.StructurePath != "" }

// HasScores reports whether a score file was matched.
func (s Set) HasScores() bool { return s.ScorePath != "" }

// At returns the artifacts of the entry at position entry. Positions
// past the end of a pool are absent, not an error.
func (s Selection) At(entry int) Set {
	var set Set
	if entry >= 0 && entry < len(s.Structures) {
		set.StructurePath = s.Structures[entry]
	}
	if entry >= 0 && entry < len(s.Scores) {
		set.ScorePath = s.Scores[entry]
	}
	return set
}

// Scan lists the artifact files of every directory directly below root,
// except exclude, and builds a Snapshot from them.
func Scan(ctx context.Context, root, exclude string, scheme Scheme) (*Snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	excluded := filepath.Clean(exclude)
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if filepath.Clean(dir) == excluded {
			continue
		}
		dirs = append(dirs, dir)
	}
	structures := make([][]string, len(dirs))
	scores := make([][]string, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			if structures[i], err = ListFiles(dir, scheme.StructureExt); err != nil {
				return err
			}
			scores[i], err = ListFiles(dir, scheme.ScoreExt)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSnapshot(scheme, flatten(structures), flatten(scores))
}

// ListFiles returns the regular files of dir ending in ext, sorted by name.
func ListFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func flatten(lists [][]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return all
}
