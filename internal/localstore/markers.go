// ABOUTME: Flat migration marker keys stored beside the conversation blob
// ABOUTME: Completion flag, timestamp, and run id persisted after a migration finalizes
package localstore

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	markerCompleted = "migration_completed"
	markerTimestamp = "migration_timestamp"
	markerRunID     = "migration_id"
)

// SetMigrationCompleted persists the completion marker, timestamp, and
// migration run id. Called by the migration engine's finalize step only
// after verification succeeds.
func (s *Store) SetMigrationCompleted(runID string, when time.Time) error {
	if err := s.writeMarker(markerCompleted, "true"); err != nil {
		return err
	}
	if err := s.writeMarker(markerTimestamp, when.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return s.writeMarker(markerRunID, runID)
}

// MigrationCompleted reports whether a migration has already finalized
func (s *Store) MigrationCompleted() bool {
	return s.readMarker(markerCompleted) == "true"
}

// MigrationRunID returns the recorded migration run id, or empty
func (s *Store) MigrationRunID() string {
	return s.readMarker(markerRunID)
}

// MigrationTimestamp returns the recorded completion time
func (s *Store) MigrationTimestamp() (time.Time, bool) {
	v := s.readMarker(markerTimestamp)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ClearMigrationMarkers removes all migration markers
func (s *Store) ClearMigrationMarkers() {
	for _, name := range []string{markerCompleted, markerTimestamp, markerRunID} {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

func (s *Store) writeMarker(name, value string) error {
	return os.WriteFile(filepath.Join(s.dir, name), []byte(value), 0644)
}

func (s *Store) readMarker(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
