package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// ErrSummaryExists means a summary with the computed name is already there.
var ErrSummaryExists = errors.New("import_summary_exists")

const snapshotInterval = 60 * time.Second

// summaryName is derived from the processor name and the run start, so two
// runs started in the same second for the same processor collide.
func summaryName(processorName string, startedAt time.Time) string {
	base := slug.Make(processorName)
	if base == "" {
		base = "processor"
	}
	return fmt.Sprintf("import-%s-%s.json", base, startedAt.UTC().Format("20060102T150405Z"))
}

func partialName(summary string) string {
	return strings.TrimSuffix(summary, ".json") + ".partial.json"
}

// checkSummaryFree fails fast when a summary is already at path, so a
// colliding run does no ledger work. writeSummary stays the final guard.
func checkSummaryFree(path string) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrSummaryExists, path)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// writeSummary creates path exclusively; it never replaces an existing file.
func writeSummary(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrSummaryExists, path)
		}
		return err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// snapshotter rewrites the partial run log at most once per interval.
type snapshotter struct {
	path string
	last time.Time
}

func (s *snapshotter) due(now time.Time) bool {
	return now.Sub(s.last) >= snapshotInterval
}

func (s *snapshotter) write(stats *Stats, now time.Time) error {
	body, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.last = now
	return nil
}

func (s *snapshotter) remove() {
	_ = os.Remove(s.path)
}
