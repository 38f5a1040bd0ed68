package store

import (
	"database/sql"
	"errors"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS session_records (
  kind TEXT NOT NULL,
  id TEXT NOT NULL,
  payload JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_session_records_kind ON session_records (kind);
`)
	})
	return s.schemaErr
}

func (s *Store) putDB(rec record) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
INSERT INTO session_records (kind, id, payload, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (kind, id)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		rec.Kind, rec.ID, []byte(rec.Payload), rec.UpdatedAt)
	return err
}

func (s *Store) getDB(kind, id string) (record, bool, error) {
	if err := s.ensureSchema(); err != nil {
		return record{}, false, err
	}
	rec := record{Kind: kind, ID: id}
	var payload []byte
	err := s.db.QueryRow(`SELECT payload, updated_at FROM session_records
WHERE kind = $1 AND id = $2`, kind, id).Scan(&payload, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	rec.Payload = payload
	return rec, true, nil
}

func (s *Store) deleteDB(kind, id string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM session_records WHERE kind = $1 AND id = $2`, kind, id)
	return err
}

func (s *Store) listDB(kind string) ([]record, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT id, payload, updated_at FROM session_records
WHERE kind = $1 ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []record
	for rows.Next() {
		rec := record{Kind: kind}
		var payload []byte
		if err := rows.Scan(&rec.ID, &payload, &rec.UpdatedAt); err != nil {
			continue
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}
