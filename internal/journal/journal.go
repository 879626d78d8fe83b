package journal

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/ggonzalez94/swapd/internal/trace"
	_ "modernc.org/sqlite"
)

// Attempt is the operator-facing audit record of one terminal swap
// request. It is written once after the attempt succeeds or fails and is
// never consulted during orchestration.
type Attempt struct {
	AttemptID   string        `json:"attempt_id"`
	Wallet      string        `json:"wallet"`
	SrcToken    string        `json:"src_token"`
	DestToken   string        `json:"dest_token"`
	SrcAmount   string        `json:"src_amount"`
	DestAmount  string        `json:"dest_amount,omitempty"`
	Mode        string        `json:"mode"`
	Status      string        `json:"status"`
	TxHash      string        `json:"tx_hash,omitempty"`
	Error       string        `json:"error,omitempty"`
	Trace       []trace.Entry `json:"trace,omitempty"`
	CompletedAt string        `json:"completed_at"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

func NewAttemptID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "swap-unknown"
	}
	return fmt.Sprintf("swap_%s", hex.EncodeToString(b))
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			wallet TEXT NOT NULL,
			status TEXT NOT NULL,
			completed_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_attempts_completed ON attempts(completed_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(attempt Attempt) error {
	if strings.TrimSpace(attempt.AttemptID) == "" {
		return fmt.Errorf("save attempt: missing attempt id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	completedUnix := time.Now().UTC().Unix()
	if t, err := time.Parse(time.RFC3339, attempt.CompletedAt); err == nil {
		completedUnix = t.UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO attempts (attempt_id, wallet, status, completed_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET
			status=excluded.status,
			completed_at=excluded.completed_at,
			payload=excluded.payload
	`, attempt.AttemptID, attempt.Wallet, attempt.Status, completedUnix, payload)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *Store) Get(attemptID string) (Attempt, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM attempts WHERE attempt_id = ?", attemptID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, fmt.Errorf("attempt not found: %s", attemptID)
		}
		return Attempt{}, fmt.Errorf("read attempt: %w", err)
	}
	var attempt Attempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return Attempt{}, fmt.Errorf("decode attempt payload: %w", err)
	}
	return attempt, nil
}

func (s *Store) List(status string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM attempts ORDER BY completed_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM attempts WHERE status = ? ORDER BY completed_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		var attempt Attempt
		if err := json.Unmarshal(payload, &attempt); err != nil {
			return nil, fmt.Errorf("decode attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return attempts, nil
}
