package jobregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/3leaps/gobulk/pkg/bulk"
)

// Store persists and loads JobRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<run_id>/job.json
//
// Root is expected to be under the app data dir. Bulk job ids are opaque
// upstream identifiers and are stored inside the record, not used as paths.
type Store struct {
	root         string
	manifestPath string
	pid          int
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root), pid: os.Getpid()}
}

// WithManifestPath stamps new records with the manifest that started them.
// Returns the store for method chaining.
func (s *Store) WithManifestPath(path string) *Store {
	s.manifestPath = path
	return s
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

func (s *Store) JobPath(runID string) string {
	return filepath.Join(s.RunDir(runID), "job.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("job registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// RecordJob writes the current state of a bulk job for runID.
func (s *Store) RecordJob(_ context.Context, runID string, job *bulk.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	rec := &JobRecord{
		RunID:          runID,
		Kind:           job.Kind.String(),
		State:          stateFor(job.Status),
		BulkJobID:      job.ID,
		Status:         job.Status,
		ErrorCode:      job.ErrorCode,
		ResultLocation: job.ResultLocation,
		ObjectCount:    job.ObjectCount,
		Attempts:       job.Attempts,
		ManifestPath:   s.manifestPath,
		SubmittedAt:    job.SubmittedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if rec.State == RunStateRunning {
		rec.PID = s.pid
	} else {
		now := time.Now().UTC()
		rec.EndedAt = &now
	}
	return s.Write(rec)
}

func (s *Store) Write(record *JobRecord) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	runID := strings.TrimSpace(record.RunID)
	if runID == "" {
		return fmt.Errorf("run_id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run_id %q", runID)
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	runDir := s.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(runDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath(runID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

func (s *Store) Get(runID string) (*JobRecord, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	b, err := os.ReadFile(s.JobPath(runID))
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var record JobRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}

	// A run still marked running whose process is gone ended without a
	// final write.
	if record.State == RunStateRunning && record.PID > 0 && record.PID != s.pid {
		if !isProcessAlive(record.PID) {
			record.State = RunStateUnknown
			_ = s.Write(&record)
		}
	}
	return &record, nil
}

// List returns every record, most recently submitted first. An empty
// kind lists every kind.
func (s *Store) List(kind string) ([]JobRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]JobRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 is supported on unix; it checks for existence without sending a signal.
	if err := p.Signal(os.Signal(syscall.Signal(0))); err != nil {
		return false
	}
	return true
}
