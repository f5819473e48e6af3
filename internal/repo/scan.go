package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/diagramd/internal/secrets"
)

// Entry kinds in a survey inventory.
const (
	KindText         = "text"
	KindBinary       = "binary"
	KindCollapsedDir = "collapsed_dir"
)

// Entry describes one item found during the scan.
type Entry struct {
	Kind      string `json:"type"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Extension string `json:"extension,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	FileCount int    `json:"file_count,omitempty"`
}

// Stats summarizes a scan.
type Stats struct {
	TextFiles     int `json:"text_files"`
	BinaryFiles   int `json:"binary_files"`
	CollapsedDirs int `json:"collapsed_dirs"`
}

// Survey is the complete scan result. Map lists everything in readable
// tree form; filtering decisions belong to the model downstream, so
// only known junk directories are collapsed.
type Survey struct {
	Root      string
	Map       string
	Inventory []Entry
	Stats     Stats
}

// Directories that never contain source worth surveying.
var collapseDirs = map[string]struct{}{
	"node_modules": {}, "__pycache__": {}, ".venv": {}, "venv": {}, "env": {},
	".next": {}, ".nuxt": {}, ".cache": {}, ".pytest_cache": {}, ".mypy_cache": {},
	".tox": {}, ".eggs": {}, "vendor": {}, "dist": {}, "build": {},
}

// Extensions that cannot be treated as text.
var binaryExts = map[string]struct{}{
	".pyc": {}, ".pyo": {}, ".so": {}, ".dll": {}, ".exe": {}, ".bin": {}, ".o": {}, ".a": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".ico": {}, ".svg": {}, ".webp": {}, ".bmp": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {}, ".bz2": {}, ".xz": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}, ".eot": {},
	".db": {}, ".sqlite": {}, ".sqlite3": {}, ".jar": {}, ".class": {},
}

// Scan walks the checkout and builds the survey.
func Scan(root string) (*Survey, error) {
	s := &Survey{Root: root}
	var lines []string
	if err := s.scanDir(root, root, 0, &lines); err != nil {
		return nil, err
	}
	s.Map = strings.Join(lines, "\n")
	for _, e := range s.Inventory {
		switch e.Kind {
		case KindText:
			s.Stats.TextFiles++
		case KindBinary:
			s.Stats.BinaryFiles++
		case KindCollapsedDir:
			s.Stats.CollapsedDirs++
		}
	}
	return s, nil
}

func (s *Survey) scanDir(path, root string, depth int, lines *[]string) error {
	indent := strings.Repeat("  ", depth)
	name := filepath.Base(path)

	if _, junk := collapseDirs[strings.ToLower(name)]; depth > 0 && (junk || strings.HasPrefix(name, ".")) {
		n := countFiles(path)
		rel, _ := filepath.Rel(root, path)
		*lines = append(*lines, fmt.Sprintf("%s[DIR: %s - %d files]", indent, name, n))
		s.Inventory = append(s.Inventory, Entry{
			Kind: KindCollapsedDir, Name: name, Path: filepath.ToSlash(rel), FileCount: n,
		})
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		*lines = append(*lines, fmt.Sprintf("%s[DIR: %s - ACCESS DENIED]", indent, name))
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	if depth > 0 {
		*lines = append(*lines, indent+name+"/")
	}

	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
			continue
		}
		rel, _ := filepath.Rel(root, filepath.Join(path, e.Name()))
		rel = filepath.ToSlash(rel)
		ext := strings.ToLower(filepath.Ext(e.Name()))
		info, ierr := e.Info()
		var size int64
		if ierr == nil {
			size = info.Size()
		}
		if _, bin := binaryExts[ext]; bin {
			*lines = append(*lines, fmt.Sprintf("%s  %s [BINARY]", indent, e.Name()))
			s.Inventory = append(s.Inventory, Entry{
				Kind: KindBinary, Name: e.Name(), Path: rel, Extension: ext, SizeBytes: size,
			})
		} else {
			*lines = append(*lines, fmt.Sprintf("%s  %s", indent, e.Name()))
			s.Inventory = append(s.Inventory, Entry{
				Kind: KindText, Name: e.Name(), Path: rel, Extension: ext, SizeBytes: size,
			})
		}
	}

	for _, d := range dirs {
		if err := s.scanDir(filepath.Join(path, d.Name()), root, depth+1, lines); err != nil {
			return err
		}
	}
	return nil
}

func countFiles(path string) int {
	n := 0
	filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

// TextEntries returns the inventory entries that can feed the model.
func (s *Survey) TextEntries() []Entry {
	var out []Entry
	for _, e := range s.Inventory {
		if e.Kind == KindText {
			out = append(out, e)
		}
	}
	return out
}

// ReadRedacted reads a file relative to the survey root, scrubs any
// detected secrets, and reports the line count of the original.
func (s *Survey) ReadRedacted(scrubber *secrets.Scrubber, rel string) (string, int, error) {
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	raw, err := os.ReadFile(full)
	if err != nil {
		return "", 0, fmt.Errorf("reading %s: %w", rel, err)
	}
	lines := countLines(string(raw))
	if scrubber == nil {
		return string(raw), lines, nil
	}
	res := scrubber.Scrub(string(raw))
	return res.Scrubbed, lines, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n
}
