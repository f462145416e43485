// Package filesystem reads product files from an input directory and writes
// assembled volumes and decode reports to disk.
package filesystem

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

// DirectorySource polls a directory tree for new product files.
// It implements pipeline.BatchExtractor.
type DirectorySource struct {
	dir      string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	// seen maps a path to the modification time it was last read at.
	seen map[string]time.Time
}

// NewDirectorySource creates a source rooted at dir that waits interval
// between empty scans.
func NewDirectorySource(dir string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *DirectorySource {
	return &DirectorySource{
		dir:      dir,
		interval: interval,
		clock:    clock,
		logger:   logger,
		seen:     make(map[string]time.Time),
	}
}

// ExtractBatch returns up to batchSize unread files, oldest modification
// time first with ties broken by name. When nothing new is found it waits
// one poll interval and returns an empty batch. A file rewritten in place is
// read again.
func (s *DirectorySource) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawFile, error) {
	candidates, err := s.scan()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.interval):
			return nil, nil
		}
	}

	if len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}
	batch := make([]domain.RawFile, 0, len(candidates))
	for _, f := range candidates {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			// Removed or unreadable between scan and read; retried next scan.
			s.logger.Warn("read product file failed", "path", f.Path, "error", err)
			continue
		}
		f.Data = data
		f.Size = int64(len(data))
		s.seen[f.Path] = f.ModTime
		batch = append(batch, f)
	}
	return batch, nil
}

// Pending reports the number of files not yet read.
func (s *DirectorySource) Pending() (int, error) {
	c, err := s.scan()
	return len(c), err
}

func (s *DirectorySource) scan() ([]domain.RawFile, error) {
	var out []domain.RawFile
	present := make(map[string]struct{}, len(s.seen))
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.dir {
				return err
			}
			s.logger.Warn("walk input directory", "path", path, "error", err)
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		present[path] = struct{}{}
		if mod, ok := s.seen[path]; ok && mod.Equal(info.ModTime()) {
			return nil
		}
		out = append(out, domain.RawFile{Path: path, Name: name, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}

	for path := range s.seen {
		if _, ok := present[path]; !ok {
			delete(s.seen, path)
		}
	}
	slices.SortFunc(out, func(a, b domain.RawFile) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}
