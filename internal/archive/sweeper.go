package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"forecastbot/internal/utils"
)

const (
	DefaultRetentionDays = 30

	// orphanAge is how old a leftover temp file must be before it is removed.
	orphanAge = time.Hour
)

type SweepResult struct {
	Deleted     []string
	Kept        int
	Unparseable []string
	Orphans     []string
	Failed      map[string]error
}

// Sweeper removes dated artifacts older than the retention horizon. Only names
// of the form <prefix>_<YYYY-MM-DD>.<ext> are candidates; the undated latest
// file and unrelated files are never touched.
type Sweeper struct {
	dir      string
	prefix   string
	days     int
	location *time.Location
	logger   *slog.Logger
	remove   func(string) error
	pattern  *regexp.Regexp
}

func NewSweeper(dir, prefix string, retentionDays int, location *time.Location, logger *slog.Logger) *Sweeper {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		dir:      dir,
		prefix:   prefix,
		days:     retentionDays,
		location: location,
		logger:   logger,
		remove:   os.Remove,
		pattern:  regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_([^.]+)\.[A-Za-z0-9]+$`),
	}
}

// Sweep deletes artifacts dated strictly before now minus the horizon, at day
// granularity in the sweeper's zone. Only a failure to list the directory is
// returned as an error; per-file problems are reported in the result.
func (s *Sweeper) Sweep(now time.Time) (SweepResult, error) {
	result := SweepResult{Failed: map[string]error{}}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to list archive directory %s: %w", s.dir, err)
	}

	local := now.In(s.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	cutoff := today.AddDate(0, 0, -s.days)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, utils.TempPrefix+s.prefix) {
			s.removeOrphan(entry, now, &result)
			continue
		}
		if !strings.HasPrefix(name, s.prefix+"_") {
			continue
		}

		m := s.pattern.FindStringSubmatch(name)
		if m == nil {
			result.Unparseable = append(result.Unparseable, name)
			continue
		}
		date, err := time.ParseInLocation(dateLayout, m[1], s.location)
		if err != nil {
			result.Unparseable = append(result.Unparseable, name)
			continue
		}

		if !date.Before(cutoff) {
			result.Kept++
			continue
		}

		path := filepath.Join(s.dir, name)
		if err := s.remove(path); err != nil {
			result.Failed[name] = err
			s.logger.Warn("Failed to delete expired archive", "path", path, "error", err)
			continue
		}
		result.Deleted = append(result.Deleted, name)
	}

	if len(result.Unparseable) > 0 {
		s.logger.Warn("Archive files with unparseable dates left in place", "files", result.Unparseable)
	}
	s.logger.Info("Swept archive", "dir", s.dir, "deleted", len(result.Deleted), "kept", result.Kept,
		"orphans", len(result.Orphans), "cutoff", cutoff.Format(dateLayout))

	return result, nil
}

// removeOrphan deletes a temp file left behind by an interrupted archive write.
func (s *Sweeper) removeOrphan(entry fs.DirEntry, now time.Time, result *SweepResult) {
	name := entry.Name()
	info, err := entry.Info()
	if err != nil || now.Sub(info.ModTime()) < orphanAge {
		return
	}
	path := filepath.Join(s.dir, name)
	if err := s.remove(path); err != nil {
		result.Failed[name] = err
		s.logger.Warn("Failed to delete orphaned temp file", "path", path, "error", err)
		return
	}
	result.Orphans = append(result.Orphans, name)
}
