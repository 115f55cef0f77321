package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore manages idempotency keys, mint submissions and the admin audit log.
type SQLiteStore struct {
	db *sql.DB
}

// ErrIdempotencyMismatch is returned when a key is reused with a different payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// ErrSubmissionNotFound is returned when a request id has no stored submission.
var ErrSubmissionNotFound = errors.New("submission not found")

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            api_key TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(api_key, idempotency_key)
        );`,
		`CREATE TABLE IF NOT EXISTS mint_submissions (
            request_id TEXT PRIMARY KEY,
            api_key TEXT NOT NULL,
            kind TEXT NOT NULL,
            collection TEXT NOT NULL,
            minter TEXT,
            quantity INTEGER NOT NULL,
            payment TEXT NOT NULL,
            digest TEXT,
            status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS admin_audit (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            actor TEXT NOT NULL,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StoredResponse represents a cached response for an idempotency key.
type StoredResponse struct {
	Status int
	Body   []byte
}

func (s *SQLiteStore) LookupIdempotency(ctx context.Context, apiKey, key, requestHash string) (*StoredResponse, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE api_key = ? AND idempotency_key = ?`
	row := s.db.QueryRowContext(ctx, query, apiKey, key)
	var status int
	var body []byte
	var storedHash string
	err := row.Scan(&status, &body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

func (s *SQLiteStore) SaveIdempotency(ctx context.Context, apiKey, key, requestHash string, status int, body []byte) error {
	const stmt = `INSERT OR REPLACE INTO idempotency_keys(api_key, idempotency_key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, apiKey, key, requestHash, status, body, time.Now().UTC())
	return err
}

// MintSubmission is the stored outcome of a mint forwarded to the node.
type MintSubmission struct {
	RequestID  string    `json:"requestId"`
	APIKey     string    `json:"-"`
	Kind       string    `json:"kind"`
	Collection string    `json:"collection"`
	Minter     string    `json:"minter,omitempty"`
	Quantity   uint64    `json:"quantity"`
	Payment    string    `json:"payment"`
	Digest     string    `json:"digest,omitempty"`
	Status     int       `json:"status"`
	Response   []byte    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InsertSubmission records the final outcome of a mint request.
func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub MintSubmission) error {
	const stmt = `INSERT INTO mint_submissions(request_id, api_key, kind, collection, minter, quantity, payment, digest, status, response_body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, sub.RequestID, sub.APIKey, sub.Kind, sub.Collection, sub.Minter, sub.Quantity, sub.Payment, sub.Digest, sub.Status, sub.Response, sub.CreatedAt)
	return err
}

// GetSubmission fetches a submission by request id.
func (s *SQLiteStore) GetSubmission(ctx context.Context, requestID string) (MintSubmission, error) {
	const query = `SELECT request_id, api_key, kind, collection, minter, quantity, payment, digest, status, response_body, created_at FROM mint_submissions WHERE request_id = ?`
	row := s.db.QueryRowContext(ctx, query, requestID)
	var sub MintSubmission
	if err := row.Scan(&sub.RequestID, &sub.APIKey, &sub.Kind, &sub.Collection, &sub.Minter, &sub.Quantity, &sub.Payment, &sub.Digest, &sub.Status, &sub.Response, &sub.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MintSubmission{}, ErrSubmissionNotFound
		}
		return MintSubmission{}, err
	}
	return sub, nil
}

// AuditEntry represents an admin audit row.
type AuditEntry struct {
	Actor          string
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	Timestamp      time.Time
}

func (s *SQLiteStore) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	const stmt = `INSERT INTO admin_audit(actor, method, path, request_body, response_status, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.Actor, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.Timestamp)
	return err
}
