package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/mattn/go-sqlite3"
)

// SQLiteRepo keeps documents and versions in two tables. The
// UNIQUE (document_id, version_number) constraint is the last line of defence
// against two writers picking the same number; every mutation runs in a
// transaction so the version row and the document pointer commit together.
//
// Timestamps are stored as UTC unix nanoseconds.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo wraps a migrated database (see migrations.MigrateUp).
func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

const documentColumns = `id, owner_id, title, type, current_version_id, current_version_number, created_at, updated_at`

const versionColumns = `id, document_id, version_number, content, content_format, checksum_sha256, created_by, reverted_from, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		d                document.Document
		typ              string
		created, updated int64
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &typ, &d.CurrentVersionID, &d.CurrentVersionNumber, &created, &updated); err != nil {
		return nil, err
	}
	d.Type = document.Type(typ)
	d.CreatedAt = fromNanos(created)
	d.UpdatedAt = fromNanos(updated)
	return &d, nil
}

func scanVersion(row rowScanner) (*document.Version, error) {
	var (
		v        document.Version
		reverted sql.NullInt64
		created  int64
	)
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.Content, &v.ContentFormat, &v.ChecksumSHA256, &v.CreatedBy, &reverted, &created); err != nil {
		return nil, err
	}
	if reverted.Valid {
		n := int(reverted.Int64)
		v.RevertedFrom = &n
	}
	v.CreatedAt = fromNanos(created)
	return &v, nil
}

func revertedArg(v *document.Version) any {
	if v.RevertedFrom == nil {
		return nil
	}
	return *v.RevertedFrom
}

func insertVersion(ctx context.Context, tx *sql.Tx, v *document.Version) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DocumentID, v.VersionNumber, v.Content, v.ContentFormat, v.ChecksumSHA256, v.CreatedBy, revertedArg(v), toNanos(v.CreatedAt))
	return err
}

func (s *SQLiteRepo) CreateDocument(ctx context.Context, doc *document.Document, initial *document.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Unavailable("begin create document", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Title, string(doc.Type), initial.ID, initial.VersionNumber, toNanos(doc.CreatedAt), toNanos(doc.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return document.ErrAlreadyInitialized
		}
		return document.Unavailable("insert document", err)
	}
	if err := insertVersion(ctx, tx, initial); err != nil {
		if isUniqueViolation(err) {
			return document.ErrAlreadyInitialized
		}
		return document.Unavailable("insert initial version", err)
	}
	if err := tx.Commit(); err != nil {
		return document.Unavailable("commit create document", err)
	}
	return nil
}

func (s *SQLiteRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND deleted_at IS NULL`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}
		return nil, document.Unavailable("select document", err)
	}
	return d, nil
}

func (s *SQLiteRepo) ListDocuments(ctx context.Context, ownerID string, docType document.Type) ([]*document.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE owner_id = ? AND deleted_at IS NULL AND (? = '' OR type = ?)
		 ORDER BY updated_at DESC, id ASC`, ownerID, string(docType), string(docType))
	if err != nil {
		return nil, document.Unavailable("list documents", err)
	}
	defer rows.Close()
	out := []*document.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, document.Unavailable("scan document", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, document.Unavailable("list documents", err)
	}
	return out, nil
}

func (s *SQLiteRepo) RenameDocument(ctx context.Context, id, title string, at time.Time) error {
	return s.updateAlive(ctx, `UPDATE documents SET title = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		title, toNanos(at), id)
}

func (s *SQLiteRepo) DeleteDocument(ctx context.Context, id string, at time.Time) error {
	return s.updateAlive(ctx, `UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		toNanos(at), toNanos(at), id)
}

func (s *SQLiteRepo) updateAlive(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return document.Unavailable("update document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return document.Unavailable("update document", err)
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (s *SQLiteRepo) LatestVersionNumber(ctx context.Context, documentID string) (int, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return 0, err
	}
	var max int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM versions WHERE document_id = ?`, documentID).Scan(&max)
	if err != nil {
		return 0, document.Unavailable("latest version", err)
	}
	return max, nil
}

func (s *SQLiteRepo) AppendVersion(ctx context.Context, v *document.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Unavailable("begin append version", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET current_version_id = ?, current_version_number = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		v.ID, v.VersionNumber, toNanos(v.CreatedAt), v.DocumentID)
	if err != nil {
		return document.Unavailable("move current version", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return document.Unavailable("move current version", err)
	} else if n == 0 {
		return document.ErrNotFound
	}
	if err := insertVersion(ctx, tx, v); err != nil {
		if isUniqueViolation(err) {
			return document.ErrVersionConflict
		}
		return document.Unavailable("insert version", err)
	}
	if err := tx.Commit(); err != nil {
		return document.Unavailable("commit append version", err)
	}
	return nil
}

func (s *SQLiteRepo) GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? AND version_number = ?`, documentID, number)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrVersionNotFound
		}
		return nil, document.Unavailable("select version", err)
	}
	return v, nil
}

func (s *SQLiteRepo) ListVersions(ctx context.Context, documentID string) ([]*document.Version, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY version_number ASC`, documentID)
	if err != nil {
		return nil, document.Unavailable("list versions", err)
	}
	defer rows.Close()
	out := []*document.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, document.Unavailable("scan version", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, document.Unavailable("list versions", err)
	}
	return out, nil
}

func (s *SQLiteRepo) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return document.Unavailable("sqlite ping", err)
	}
	return nil
}
