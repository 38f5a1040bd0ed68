// Package store persists workflow sessions, clarification sessions, and
// project metadata as structured records keyed by id. A JSON file backend
// serves single-node setups; a postgres backend takes over when a DSN is
// configured. Nothing above this package depends on the storage format
// beyond round-trip fidelity.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ideaforge/internal/types"
)

// Record kinds.
const (
	KindWorkflow      = "workflow"
	KindClarification = "clarification"
	KindProject       = "project"
)

type record struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the session store. Exactly one of path/db is active.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	byKey    map[string]record

	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[string, json.RawMessage]
}

const cacheSize = 512

// New creates a file-backed store at path.
func New(path string) *Store {
	cache, _ := lru.New[string, json.RawMessage](cacheSize)
	return &Store{path: path, byKey: make(map[string]record), cache: cache}
}

// NewPostgres creates a postgres-backed store.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, _ := lru.New[string, json.RawMessage](cacheSize)
	return &Store{db: db, cache: cache}, nil
}

// NewFromEnv selects postgres when IDEAFORGE_PG_DSN is set, falling back
// to the file backend on connection failure.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("IDEAFORGE_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(path)
	}
	return s
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func key(kind, id string) string { return kind + "/" + id }

func (s *Store) put(kind, id string, v any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("store: empty id for %s record", kind)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s %s: %w", kind, id, err)
	}
	rec := record{Kind: kind, ID: id, Payload: payload, UpdatedAt: time.Now().UTC()}
	if s.db != nil {
		if err := s.putDB(rec); err != nil {
			return err
		}
	} else if err := s.putFile(rec); err != nil {
		return err
	}
	s.cache.Add(key(kind, id), payload)
	return nil
}

func (s *Store) get(kind, id string, out any) error {
	id = strings.TrimSpace(id)
	if payload, ok := s.cache.Get(key(kind, id)); ok {
		return json.Unmarshal(payload, out)
	}
	var (
		rec record
		ok  bool
		err error
	)
	if s.db != nil {
		rec, ok, err = s.getDB(kind, id)
	} else {
		rec, ok, err = s.getFile(kind, id)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s record %s", types.ErrNotFound, kind, id)
	}
	s.cache.Add(key(kind, id), rec.Payload)
	return json.Unmarshal(rec.Payload, out)
}

func (s *Store) delete(kind, id string) error {
	id = strings.TrimSpace(id)
	s.cache.Remove(key(kind, id))
	if s.db != nil {
		return s.deleteDB(kind, id)
	}
	return s.deleteFile(kind, id)
}

func (s *Store) list(kind string) ([]record, error) {
	if s.db != nil {
		return s.listDB(kind)
	}
	return s.listFile(kind)
}

// PutWorkflow saves a workflow session snapshot.
func (s *Store) PutWorkflow(sess *types.WorkflowSession) error {
	return s.put(KindWorkflow, sess.ID, sess)
}

// GetWorkflow loads a workflow session; ErrNotFound for unknown ids.
func (s *Store) GetWorkflow(id string) (*types.WorkflowSession, error) {
	var sess types.WorkflowSession
	if err := s.get(KindWorkflow, id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListWorkflows returns all stored workflow sessions.
func (s *Store) ListWorkflows() ([]*types.WorkflowSession, error) {
	recs, err := s.list(KindWorkflow)
	if err != nil {
		return nil, err
	}
	out := make([]*types.WorkflowSession, 0, len(recs))
	for _, rec := range recs {
		var sess types.WorkflowSession
		if err := json.Unmarshal(rec.Payload, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

func (s *Store) DeleteWorkflow(id string) error { return s.delete(KindWorkflow, id) }

// PutClarification saves a clarification session snapshot.
func (s *Store) PutClarification(sess *types.ClarificationSession) error {
	return s.put(KindClarification, sess.ID, sess)
}

func (s *Store) GetClarification(id string) (*types.ClarificationSession, error) {
	var sess types.ClarificationSession
	if err := s.get(KindClarification, id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// PutProject saves project metadata.
func (s *Store) PutProject(p *types.Project) error {
	return s.put(KindProject, p.ID, p)
}

func (s *Store) GetProject(id string) (*types.Project, error) {
	var p types.Project
	if err := s.get(KindProject, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects() ([]*types.Project, error) {
	recs, err := s.list(KindProject)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Project, 0, len(recs))
	for _, rec := range recs {
		var p types.Project
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}
