package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/probe"
)

// CommandRecord is one row of the raw command audit log.
type CommandRecord struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Command   string    `json:"command"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

var _ probe.CommandRecorder = (*DB)(nil)

// RecordCommand appends a raw command to the audit log.
func (db *DB) RecordCommand(e probe.CommandEntry) error {
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	_, err := db.Exec(`INSERT INTO command_log (session_id, command, reply, error, sent_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID.String(), e.Command, e.Reply, errText, e.Time.UnixMilli())
	return err
}

// RecentCommands returns up to limit commands, newest first.
func (db *DB) RecentCommands(limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT log_id, session_id, command, reply, error, sent_at
		FROM command_log ORDER BY log_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var (
			r       CommandRecord
			session string
			sentAt  int64
		)
		if err := rows.Scan(&r.ID, &session, &r.Command, &r.Reply, &r.Error, &sentAt); err != nil {
			return nil, err
		}
		// a malformed id reads as uuid.Nil rather than failing the listing
		r.SessionID, _ = uuid.Parse(session)
		r.SentAt = time.UnixMilli(sentAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
