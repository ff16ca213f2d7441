// Package curriculum loads exam trees from YAML files and seeds them into
// the hierarchy store.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

// Loader loads exam trees from the filesystem.
type Loader struct {
	rootDir string
	exams   map[string]Entry
	paths   map[string]string
}

// NewLoader creates a new curriculum loader and loads all exam files.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		exams:   make(map[string]Entry),
		paths:   make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "exams", len(l.exams))
	return l, nil
}

// AllExams returns every loaded exam tree, sorted by name.
func (l *Loader) AllExams() []Entry {
	names := make([]string, 0, len(l.exams))
	for name := range l.exams {
		names = append(names, name)
	}
	sort.Strings(names)

	exams := make([]Entry, 0, len(names))
	for _, name := range names {
		exams = append(exams, l.exams[name])
	}
	return exams
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadExam(path)
		}
		return nil
	})
}

func (l *Loader) loadExam(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file ExamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("skipping invalid curriculum YAML", "path", path, "error", err)
		return nil
	}

	if strings.TrimSpace(file.Exam.Name) == "" {
		return nil // Not an exam file
	}
	if depth := file.Exam.Depth(); depth > len(hierarchy.Chain) {
		slog.Warn("skipping curriculum deeper than the hierarchy",
			"path", path, "depth", depth, "max", len(hierarchy.Chain))
		return nil
	}

	name := hierarchy.NormalizeName(file.Exam.Name)
	if prev, dup := l.paths[name]; dup {
		slog.Warn("duplicate exam in curriculum, keeping first", "name", name, "path", path, "first", prev)
		return nil
	}
	l.exams[name] = file.Exam
	l.paths[name] = path
	return nil
}
