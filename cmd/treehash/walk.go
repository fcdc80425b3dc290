package main

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"

	"github.com/mattn/go-zglob"
	"github.com/sirupsen/logrus"

	"github.com/tamirms/treehash"
)

var errSymlinkCycle = errors.New("symlink cycle")

// walker lists the regular files under root, applying exclusion globs and
// the symlink policy before anything reaches the pipeline.
type walker struct {
	root           string
	excludes       []string
	followSymlinks bool
	maxDepth       int // 0 means unlimited
	logger         logrus.FieldLogger

	// failures collects paths the walk itself could not list. It is only
	// written from the goroutine consuming Tasks.
	failures []treehash.FileFailure
}

// Tasks returns the walk as a task sequence. Directory entries are visited
// in lexical order.
func (w *walker) Tasks() iter.Seq[treehash.FileTask] {
	return func(yield func(treehash.FileTask) bool) {
		w.walkDir(w.root, 0, make(map[string]bool), yield)
	}
}

// rel returns p relative to the root with forward slashes, the form used
// for exclusion matching and for output.
func (w *walker) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

// excluded matches rel against every pattern, both as a full relative path
// and by base name, so "*.log" excludes log files at any depth.
func (w *walker) excluded(rel string) bool {
	for _, pattern := range w.excludes {
		for _, name := range []string{rel, path.Base(rel)} {
			ok, err := zglob.Match(pattern, name)
			if err != nil {
				w.logger.WithError(err).WithField("pattern", pattern).Warn("invalid exclude pattern")
				break
			}
			if ok {
				return true
			}
		}
	}
	return false
}

func (w *walker) fail(p string, err error) {
	w.logger.WithError(err).WithField("path", p).Warn("skipping during walk")
	w.failures = append(w.failures, treehash.FileFailure{Path: p, Err: err})
}

func (w *walker) walkDir(dir string, depth int, visiting map[string]bool, yield func(treehash.FileTask) bool) bool {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.fail(dir, err)
		return true
	}
	if visiting[real] {
		w.fail(dir, errSymlinkCycle)
		return true
	}
	visiting[real] = true
	defer delete(visiting, real)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.fail(dir, err)
		return true
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if w.excluded(w.rel(p)) {
			continue
		}

		var info fs.FileInfo
		if e.Type()&fs.ModeSymlink != 0 {
			if !w.followSymlinks {
				continue
			}
			info, err = os.Stat(p)
		} else {
			info, err = e.Info()
		}
		if err != nil {
			w.fail(p, err)
			continue
		}

		switch {
		case info.IsDir():
			if w.maxDepth > 0 && depth+1 > w.maxDepth {
				continue
			}
			if !w.walkDir(p, depth+1, visiting, yield) {
				return false
			}
		case info.Mode().IsRegular():
			if !yield(treehash.FileTask{Path: p, Size: info.Size(), ModTime: info.ModTime()}) {
				return false
			}
		}
	}
	return true
}
