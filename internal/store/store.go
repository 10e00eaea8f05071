// Package store provides the durable SQLite state shared by proctor
// processes of one installation: the cross-context device registry, the
// persistent local device identity, and the archive of finished sessions.
//
// The registry is the coordination point for duplicate-session detection:
// all contexts for the same (candidate, assessment) read and write one
// table, so another process's heartbeat is visible here. The view is only
// eventually consistent across processes; that is accepted.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Von-Etana/lune-sub000/internal/environment"
	"github.com/Von-Etana/lune-sub000/internal/session"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Schema for the proctord durable store.
const schema = `
CREATE TABLE IF NOT EXISTS device_identity (
    id        INTEGER PRIMARY KEY CHECK (id = 1),
    device_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device_registry (
    candidate_id      TEXT NOT NULL,
    assessment_id     TEXT NOT NULL,
    device_id         TEXT NOT NULL,
    last_heartbeat_ns INTEGER NOT NULL,
    PRIMARY KEY (candidate_id, assessment_id, device_id)
);

CREATE INDEX IF NOT EXISTS idx_registry_heartbeat
    ON device_registry(candidate_id, assessment_id, last_heartbeat_ns);

CREATE TABLE IF NOT EXISTS sessions (
    session_id      TEXT PRIMARY KEY,
    candidate_id    TEXT NOT NULL,
    assessment_id   TEXT NOT NULL,
    start_ns        INTEGER NOT NULL,
    end_ns          INTEGER,
    status          TEXT NOT NULL,
    integrity_score INTEGER NOT NULL,
    environment     TEXT NOT NULL,
    metrics         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS violations (
    session_id   TEXT NOT NULL REFERENCES sessions(session_id),
    id           TEXT NOT NULL,
    type         TEXT NOT NULL,
    severity     TEXT NOT NULL,
    timestamp_ns INTEGER NOT NULL,
    description  TEXT NOT NULL,
    evidence     TEXT,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    action       TEXT NOT NULL,
    PRIMARY KEY (session_id, id)
);

CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session_id, timestamp_ns);
`

// DeviceRecord is one registry entry.
type DeviceRecord struct {
	DeviceID      string
	LastHeartbeat time.Time
}

// Store is the SQLite-backed durable store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DeviceIdentity returns this device's persistent identifier, generating and
// storing one on first use.
func (s *Store) DeviceIdentity() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT device_id FROM device_identity WHERE id = 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read device identity: %w", err)
	}

	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate device identity: %w", err)
	}
	id = hex.EncodeToString(b[:])

	// Another process may have raced us; keep whichever landed first.
	if _, err := s.db.Exec(
		`INSERT INTO device_identity (id, device_id) VALUES (1, ?)
		 ON CONFLICT(id) DO NOTHING`, id); err != nil {
		return "", fmt.Errorf("store device identity: %w", err)
	}
	if err := s.db.QueryRow(`SELECT device_id FROM device_identity WHERE id = 1`).Scan(&id); err != nil {
		return "", fmt.Errorf("reread device identity: %w", err)
	}
	return id, nil
}

// PruneDevices removes registry entries whose heartbeat is older than
// before. Returns the number of pruned entries.
func (s *Store) PruneDevices(candidateID, assessmentID string, before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM device_registry
		 WHERE candidate_id = ? AND assessment_id = ? AND last_heartbeat_ns < ?`,
		candidateID, assessmentID, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune devices: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Devices lists all registry entries for a (candidate, assessment) key.
func (s *Store) Devices(candidateID, assessmentID string) ([]DeviceRecord, error) {
	rows, err := s.db.Query(
		`SELECT device_id, last_heartbeat_ns FROM device_registry
		 WHERE candidate_id = ? AND assessment_id = ?
		 ORDER BY last_heartbeat_ns DESC`,
		candidateID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var rec DeviceRecord
		var ns int64
		if err := rows.Scan(&rec.DeviceID, &ns); err != nil {
			return nil, fmt.Errorf("scan device record: %w", err)
		}
		rec.LastHeartbeat = time.Unix(0, ns)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TouchDevice registers the device or refreshes its heartbeat.
func (s *Store) TouchDevice(candidateID, assessmentID, deviceID string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO device_registry (candidate_id, assessment_id, device_id, last_heartbeat_ns)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(candidate_id, assessment_id, device_id)
		 DO UPDATE SET last_heartbeat_ns = excluded.last_heartbeat_ns`,
		candidateID, assessmentID, deviceID, at.UnixNano())
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

// RemoveDevice drops this device's registry entry, typically at session end.
func (s *Store) RemoveDevice(candidateID, assessmentID, deviceID string) error {
	_, err := s.db.Exec(
		`DELETE FROM device_registry
		 WHERE candidate_id = ? AND assessment_id = ? AND device_id = ?`,
		candidateID, assessmentID, deviceID)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	return nil
}

// ArchiveSession stores a final session snapshot with its violations.
// Archiving the same session again replaces the previous archive.
func (s *Store) ArchiveSession(snap *session.Snapshot) error {
	envJSON, err := json.Marshal(snap.Environment)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	metricsJSON, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	var endNS any
	if !snap.EndTime.IsZero() {
		endNS = snap.EndTime.UnixNano()
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions
		 (session_id, candidate_id, assessment_id, start_ns, end_ns, status, integrity_score, environment, metrics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.CandidateID, snap.AssessmentID,
		snap.StartTime.UnixNano(), endNS, string(snap.Status),
		snap.IntegrityScore, string(envJSON), string(metricsJSON)); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM violations WHERE session_id = ?`, snap.SessionID); err != nil {
		return fmt.Errorf("clear violations: %w", err)
	}
	for _, v := range snap.Violations {
		if _, err := tx.Exec(
			`INSERT INTO violations
			 (session_id, id, type, severity, timestamp_ns, description, evidence, acknowledged, action)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.SessionID, v.ID, string(v.Type), string(v.Severity),
			v.Timestamp.UnixNano(), v.Description, v.Evidence,
			boolToInt(v.Acknowledged), string(v.Action)); err != nil {
			return fmt.Errorf("archive violation %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

// Session loads an archived session snapshot by ID.
func (s *Store) Session(sessionID string) (*session.Snapshot, error) {
	var snap session.Snapshot
	var startNS int64
	var endNS sql.NullInt64
	var status, envJSON, metricsJSON string

	err := s.db.QueryRow(
		`SELECT session_id, candidate_id, assessment_id, start_ns, end_ns, status, integrity_score, environment, metrics
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&snap.SessionID, &snap.CandidateID, &snap.AssessmentID,
			&startNS, &endNS, &status, &snap.IntegrityScore, &envJSON, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	snap.StartTime = time.Unix(0, startNS)
	if endNS.Valid {
		snap.EndTime = time.Unix(0, endNS.Int64)
	}
	snap.Status = session.Status(status)

	var env environment.Snapshot
	if err := json.Unmarshal([]byte(envJSON), &env); err != nil {
		return nil, fmt.Errorf("unmarshal environment: %w", err)
	}
	snap.Environment = env
	if err := json.Unmarshal([]byte(metricsJSON), &snap.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, type, severity, timestamp_ns, description, evidence, acknowledged, action
		 FROM violations WHERE session_id = ? ORDER BY timestamp_ns`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load violations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v session.Violation
		var ns int64
		var vType, vSev, vAction string
		var evidence sql.NullString
		var ack int
		if err := rows.Scan(&v.ID, &vType, &vSev, &ns, &v.Description, &evidence, &ack, &vAction); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Type = session.ViolationType(vType)
		v.Severity = session.Severity(vSev)
		v.Timestamp = time.Unix(0, ns)
		v.Evidence = evidence.String
		v.Acknowledged = ack != 0
		v.Action = session.Action(vAction)
		snap.Violations = append(snap.Violations, v)
	}
	return &snap, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
