// Package cleaner normalizes whitespace in project source files.
package cleaner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/hookforge/internal/pipeline"
)

// Config selects which files are cleaned.
type Config struct {
	Include     []string `yaml:"include"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// DefaultConfig cleans Python sources and common text files.
func DefaultConfig() Config {
	return Config{
		Include:     []string{".py", ".pyi", ".toml", ".cfg", ".md", ".txt", ".yaml", ".yml"},
		ExcludeDirs: []string{".git", ".venv", "venv", "__pycache__", "node_modules", ".hookforge", "build", "dist"},
	}
}

// Result describes the outcome of cleaning one file.
type Result struct {
	Path         string `json:"path"`
	Success      bool   `json:"success"`
	Changed      bool   `json:"changed"`
	LinesRemoved int    `json:"lines_removed"`
	Backup       string `json:"backup,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Cleaner cleans files under a project root.
type Cleaner struct {
	root   string
	cfg    Config
	policy pipeline.CleanupPolicy
}

// New creates a Cleaner rooted at root.
func New(root string, cfg Config, policy pipeline.CleanupPolicy) *Cleaner {
	return &Cleaner{root: root, cfg: cfg, policy: policy}
}

// ListFiles walks the project root and returns every regular file outside
// excluded directories. Paths are absolute.
func (c *Cleaner) ListFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.root && c.excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.root, err)
	}
	return files, nil
}

func (c *Cleaner) excludedDir(name string) bool {
	for _, d := range c.cfg.ExcludeDirs {
		if d == name {
			return true
		}
	}
	return false
}

// ShouldProcessFile reports whether path has an included extension, is not
// under an excluded directory and matches no exclude pattern of the policy.
func (c *Cleaner) ShouldProcessFile(path string) bool {
	if strings.HasSuffix(path, ".bak") {
		return false
	}
	included := false
	ext := filepath.Ext(path)
	for _, inc := range c.cfg.Include {
		if strings.EqualFold(inc, ext) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if c.excludedDir(part) {
			return false
		}
	}
	for _, pattern := range c.policy.Exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return false
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return false
		}
	}
	return true
}

// CleanFile normalizes line endings, strips trailing whitespace, collapses
// runs of more than two blank lines and ensures a single trailing newline.
// The file is only rewritten when its content changes.
func (c *Cleaner) CleanFile(path string) (Result, error) {
	res := Result{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		// Binary file: nothing to do.
		res.Success = true
		return res, nil
	}

	cleaned, removed := Normalize(data)
	res.LinesRemoved = removed
	if bytes.Equal(cleaned, data) {
		res.Success = true
		return res, nil
	}

	if c.policy.Backup {
		res.Backup = path + ".bak"
		if err := os.WriteFile(res.Backup, data, info.Mode().Perm()); err != nil {
			res.Error = err.Error()
			return res, nil
		}
	}
	if err := pipeline.WriteAtomic(path, cleaned, info.Mode().Perm()); err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Changed = true
	res.Success = true
	return res, nil
}

// Normalize returns the cleaned content and the number of lines dropped.
func Normalize(data []byte) ([]byte, int) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	// Drop the empty element after a final newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	out := make([]string, 0, len(lines))
	blanks := 0
	removed := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 2 {
				removed++
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
		removed++
	}
	if len(out) == 0 {
		return nil, removed
	}
	return []byte(strings.Join(out, "\n") + "\n"), removed
}
