// Package store provides the in-memory task record store for Warble.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/warble/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound indicates the requested task record does not exist.
var ErrNotFound = fmt.Errorf("task record not found")

// ErrInvalidTransition indicates a status change that violates the task state
// machine. The record is left unchanged.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// transitions is the task state machine: pending -> running -> completed|failed,
// pending -> cancelled, running -> cancelled. Terminal states have no exits.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending: {models.TaskStatusRunning, models.TaskStatusCancelled},
	models.TaskStatusRunning: {models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled},
}

func canTransition(from, to models.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// entry wraps a record with a creation sequence number so listing order is
// deterministic even when two records share a created_at timestamp.
type entry struct {
	rec *models.TaskRecord
	seq uint64
}

// Store is the single source of truth for task lifecycle state. All mutations
// run under the write lock, which serializes writes to every record; reads
// return deep copies so callers never observe concurrent mutation.
type Store struct {
	mu           sync.RWMutex
	records      map[string]*entry
	nextSeq      uint64
	lastActivity time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]*entry),
	}
}

// --- Record Operations ---

// Create allocates a new pending record for the given request.
func (s *Store) Create(req models.TaskRequest) (*models.TaskRecord, error) {
	return s.CreateForSchedule(req, "")
}

// CreateForSchedule creates a pending record linked to the schedule that
// fired it. An empty scheduleID means the record was requested directly.
func (s *Store) CreateForSchedule(req models.TaskRequest, scheduleID string) (*models.TaskRecord, error) {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}

	rec := &models.TaskRecord{
		ID:         uuid.New().String(),
		Request:    req,
		Status:     models.TaskStatusPending,
		ScheduleID: scheduleID,
		CreatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	s.records[rec.ID] = &entry{rec: rec, seq: s.nextSeq}
	s.lastActivity = now
	return cloneRecord(rec), nil
}

// Get retrieves a record by ID.
func (s *Store) Get(id string) (*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(e.rec), nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status     models.TaskStatus
	Type       models.TaskType
	ScheduleID string
	Limit      int
}

// List returns records matching the filter, most recently created first.
func (s *Store) List(f Filter) []*models.TaskRecord {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		if f.Status != "" && e.rec.Status != f.Status {
			continue
		}
		if f.Type != "" && e.rec.Request.Type != f.Type {
			continue
		}
		if f.ScheduleID != "" && e.rec.ScheduleID != f.ScheduleID {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}

	out := make([]*models.TaskRecord, len(entries))
	for i, e := range entries {
		out[i] = cloneRecord(e.rec)
	}
	return out
}

// Delete removes a record entirely. Cancellation of live work goes through
// Update; Delete is the cleanup path for terminal records.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	s.lastActivity = time.Now().UTC()
	return nil
}

// --- Mutations ---

// Mutation describes an atomic change to a record. A Status change is
// validated against the state machine before anything is applied. Result may
// only accompany a transition to completed, Error only a transition to
// failed, and Progress requires the record to be (or become) running.
type Mutation struct {
	Status   *models.TaskStatus
	Progress *int
	Result   map[string]any
	Error    *string
}

// Update applies the mutation atomically. On any validation failure the
// record is left exactly as it was.
func (s *Store) Update(id string, mut Mutation) (*models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := e.rec

	// Validate everything before touching the record.
	target := rec.Status
	if mut.Status != nil {
		target = *mut.Status
		if !canTransition(rec.Status, target) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, target)
		}
	}
	if mut.Result != nil && target != models.TaskStatusCompleted {
		return nil, fmt.Errorf("%w: result requires completed status", ErrInvalidTransition)
	}
	if mut.Error != nil && target != models.TaskStatusFailed {
		return nil, fmt.Errorf("%w: error requires failed status", ErrInvalidTransition)
	}
	if mut.Progress != nil {
		if target != models.TaskStatusRunning {
			return nil, fmt.Errorf("%w: progress requires running status", ErrInvalidTransition)
		}
		if *mut.Progress < 0 || *mut.Progress > 100 {
			return nil, fmt.Errorf("progress must be within 0..100, got %d", *mut.Progress)
		}
	}

	now := time.Now().UTC()
	if mut.Status != nil {
		rec.Status = target
		switch target {
		case models.TaskStatusRunning:
			rec.StartedAt = &now
		case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled:
			rec.CompletedAt = &now
		}
	}
	if mut.Result != nil {
		rec.Result = cloneMap(mut.Result)
	}
	if mut.Error != nil {
		rec.Error = *mut.Error
	}
	if mut.Progress != nil {
		rec.Progress = *mut.Progress
	}
	s.lastActivity = now
	return cloneRecord(rec), nil
}

// MarkRunning transitions a pending record to running and stamps StartedAt.
func (s *Store) MarkRunning(id string) (*models.TaskRecord, error) {
	status := models.TaskStatusRunning
	return s.Update(id, Mutation{Status: &status})
}

// MarkCompleted transitions a running record to completed with its result.
func (s *Store) MarkCompleted(id string, result map[string]any) (*models.TaskRecord, error) {
	status := models.TaskStatusCompleted
	if result == nil {
		result = map[string]any{}
	}
	return s.Update(id, Mutation{Status: &status, Result: result})
}

// MarkFailed transitions a record to failed with a human-readable error.
func (s *Store) MarkFailed(id, message string) (*models.TaskRecord, error) {
	status := models.TaskStatusFailed
	return s.Update(id, Mutation{Status: &status, Error: &message})
}

// MarkCancelled transitions a pending or running record to cancelled.
// Result and error stay unset.
func (s *Store) MarkCancelled(id string) (*models.TaskRecord, error) {
	status := models.TaskStatusCancelled
	return s.Update(id, Mutation{Status: &status})
}

// SetProgress updates the progress of a running record.
func (s *Store) SetProgress(id string, pct int) error {
	_, err := s.Update(id, Mutation{Progress: &pct})
	return err
}

// --- Aggregates ---

// CountByStatus returns the number of records per status.
func (s *Store) CountByStatus() map[models.TaskStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, e := range s.records {
		counts[e.rec.Status]++
	}
	return counts
}

// LastActivity returns the time of the most recent store mutation, or nil if
// nothing has happened yet.
func (s *Store) LastActivity() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastActivity.IsZero() {
		return nil
	}
	t := s.lastActivity
	return &t
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// --- Copy helpers ---

func cloneRecord(rec *models.TaskRecord) *models.TaskRecord {
	out := *rec
	out.Request.Parameters = cloneMap(rec.Request.Parameters)
	out.Result = cloneMap(rec.Result)
	if rec.StartedAt != nil {
		t := *rec.StartedAt
		out.StartedAt = &t
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
