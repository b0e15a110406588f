package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/operations"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		document_id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operations (
		id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		kind TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		length INTEGER NOT NULL,
		author TEXT NOT NULL,
		logical_time INTEGER NOT NULL,
		PRIMARY KEY (document_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_operations_id ON operations(id);
	CREATE INDEX IF NOT EXISTS idx_operations_author ON operations(author);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveSnapshot(snap document.Snapshot) error {
	query := `
		INSERT INTO snapshots (document_id, version, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			version = excluded.version,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query, snap.DocumentID, snap.Version, snap.Content, time.Now().Unix())
	return err
}

func (s *SQLiteStore) LoadSnapshot(documentID string) (document.Snapshot, error) {
	query := `SELECT version, content FROM snapshots WHERE document_id = ?`

	snap := document.Snapshot{DocumentID: documentID}
	err := s.db.QueryRow(query, documentID).Scan(&snap.Version, &snap.Content)
	if err == sql.ErrNoRows {
		return document.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return document.Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLiteStore) ListDocuments() ([]string, error) {
	rows, err := s.db.Query(`SELECT document_id FROM snapshots ORDER BY document_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(documentID string) error {
	result, err := s.db.Exec(`DELETE FROM snapshots WHERE document_id = ?`, documentID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}

	_, err = s.db.Exec(`DELETE FROM operations WHERE document_id = ?`, documentID)
	return err
}

func (s *SQLiteStore) AppendOperation(documentID string, op operations.Operation, version uint64) error {
	query := `
		INSERT OR REPLACE INTO operations
		(id, document_id, version, kind, position, content, length, author, logical_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		string(op.ID),
		documentID,
		version,
		string(op.Kind),
		op.Position,
		op.Content,
		op.Length,
		string(op.Author),
		op.LogicalTime,
	)
	return err
}

func (s *SQLiteStore) LoadOperationsSince(documentID string, sinceVersion uint64) ([]document.Entry, error) {
	query := `
		SELECT id, version, kind, position, content, length, author, logical_time
		FROM operations
		WHERE document_id = ? AND version > ?
		ORDER BY version ASC
	`

	rows, err := s.db.Query(query, documentID, sinceVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []document.Entry
	for rows.Next() {
		var (
			entry document.Entry
			id    string
			kind  string
		)
		err := rows.Scan(&id, &entry.Version, &kind, &entry.Operation.Position,
			&entry.Operation.Content, &entry.Operation.Length,
			&entry.Operation.Author, &entry.Operation.LogicalTime)
		if err != nil {
			return nil, err
		}
		entry.Operation.ID = operations.OperationID(id)
		entry.Operation.Kind = operations.Kind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) LatestVersion(documentID string) (uint64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM operations WHERE document_id = ?`

	var version uint64
	if err := s.db.QueryRow(query, documentID).Scan(&version); err != nil {
		return 0, err
	}
	if version == 0 {
		// No operations recorded; fall back to the snapshot version.
		snap, err := s.LoadSnapshot(documentID)
		if err == ErrSnapshotNotFound {
			return 0, ErrDocumentNotFound
		}
		if err != nil {
			return 0, err
		}
		return snap.Version, nil
	}
	return version, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
