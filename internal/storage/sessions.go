package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"pack-design-backend/internal/models"
)

// SessionStore persists one JSON blob per session id. Each state write is a
// full-row upsert, so a saved state is always internally consistent.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) (*SessionStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// GetOrCreate loads the state for a session id, creating and persisting a
// fresh step-1 state on first reference.
func (s *SessionStore) GetOrCreate(sessionID string) (*models.SessionState, error) {
	var raw string
	err := s.db.QueryRow("SELECT state_json FROM sessions WHERE session_id = ?", sessionID).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		state := models.NewSessionState(sessionID)
		if err := s.Save(state); err != nil {
			return nil, err
		}
		return state, nil
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var state models.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	state.SessionID = sessionID
	state.Normalize()
	return &state, nil
}

// Save upserts the full state for its session id.
func (s *SessionStore) Save(state *models.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions(session_id, state_json, updated_at)
		VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id)
		DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP
	`, state.SessionID, string(payload))
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}
