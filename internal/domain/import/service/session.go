package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/import/model"
	"github.com/FACorreiaa/statement-import/pkg/metrics"
)

var (
	ErrSessionNotFound     = errors.New("import session not found")
	ErrTransactionNotFound = errors.New("transaction not in preview")
	ErrNotPreviewing       = errors.New("import session is not awaiting review")
	ErrCommitInProgress    = errors.New("import session is being committed")
)

// Stage is the lifecycle position of an import session.
type Stage int

const (
	StageDetecting Stage = iota
	StagePreviewing
	StageCommitted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageDetecting:
		return "detecting"
	case StagePreviewing:
		return "previewing"
	case StageCommitted:
		return "committed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one import between preview and commit.
// The preview and stage are guarded by mu; the other fields are fixed at creation.
type Session struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	FileName    string
	Currency    string
	Mapping     model.ColumnMapping
	Fingerprint string
	CreatedAt   time.Time

	mu         sync.RWMutex
	stage      Stage
	preview    model.ImportPreview
	result     *ImportResult
	err        error
	committing bool
}

func newSession(accountID uuid.UUID, fileName string, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		AccountID: accountID,
		FileName:  fileName,
		CreatedAt: now,
		stage:     StageDetecting,
	}
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Err returns the error that moved the session to StageFailed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Result returns the commit result once the session is committed.
func (s *Session) Result() *ImportResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Preview returns a copy of the current preview.
func (s *Session) Preview() model.ImportPreview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.preview
	p.Transactions = append([]model.ImportTransactionPreview(nil), s.preview.Transactions...)
	p.Errors = append([]model.ImportError(nil), s.preview.Errors...)
	return p
}

// SetSelected includes or excludes a transaction from the commit.
func (s *Session) SetSelected(txID uuid.UUID, selected bool) error {
	return s.update(txID, func(p *model.ImportTransactionPreview) {
		p.Selected = selected
	})
}

// SetCategory overrides the suggested category; nil clears it.
func (s *Session) SetCategory(txID uuid.UUID, categoryID *uuid.UUID) error {
	return s.update(txID, func(p *model.ImportTransactionPreview) {
		p.CategoryID = categoryID
	})
}

func (s *Session) update(txID uuid.UUID, fn func(*model.ImportTransactionPreview)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	for i := range s.preview.Transactions {
		if s.preview.Transactions[i].Transaction.ID == txID {
			fn(&s.preview.Transactions[i])
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (s *Session) editableLocked() error {
	if s.committing {
		return ErrCommitInProgress
	}
	if s.stage != StagePreviewing {
		return ErrNotPreviewing
	}
	return nil
}

func (s *Session) setPreview(mapping model.ColumnMapping, fingerprint string, p model.ImportPreview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mapping = mapping
	s.Fingerprint = fingerprint
	s.preview = p
	s.stage = StagePreviewing
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = StageFailed
	s.err = err
}

// beginCommit snapshots the preview and blocks edits until endCommit.
func (s *Session) beginCommit() (model.ImportPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return model.ImportPreview{}, err
	}
	s.committing = true
	return s.preview, nil
}

// endCommit records the outcome. A nil result leaves the session previewing.
func (s *Session) endCommit(result *ImportResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	if result != nil {
		s.result = result
		s.stage = StageCommitted
	}
}

// SessionStore keeps sessions between preview and commit. Sessions expire ttl
// after creation.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewSessionStore creates a store. m may be nil.
func NewSessionStore(ttl time.Duration, m *metrics.Metrics) *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		now:      time.Now,
		metrics:  m,
	}
}

// Put stores a session under its ID.
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, exists := st.sessions[s.ID]; !exists {
		st.metrics.SessionOpened()
	}
	st.sessions[s.ID] = s
}

// Get returns a live session.
func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if st.expired(s) {
		st.removeLocked(id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete forgets a session.
func (st *SessionStore) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.removeLocked(id)
}

// Sweep drops expired sessions and returns how many were removed.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if st.expired(s) {
			st.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *SessionStore) expired(s *Session) bool {
	return st.ttl > 0 && st.now().Sub(s.CreatedAt) > st.ttl
}

func (st *SessionStore) removeLocked(id uuid.UUID) {
	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		st.metrics.SessionClosed()
	}
}
