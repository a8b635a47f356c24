package migrations

import (
	"path/filepath"
	"testing"

	"github.com/draftledger/draftledger/backend/go-services/internal/database"
	"github.com/stretchr/testify/require"
)

func TestMigrateUpAndStatus(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	err = CheckStatus(db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "needs migration")

	require.NoError(t, MigrateUp(db))
	require.NoError(t, CheckStatus(db))

	// second run is a no-op
	require.NoError(t, MigrateUp(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('documents', 'versions')`).Scan(&n))
	require.Equal(t, 2, n)
}

func TestVersionUniquenessEnforcedBySchema(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, MigrateUp(db))

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO documents (id, owner_id, title, type, current_version_id, current_version_number, created_at, updated_at)
		VALUES ('d1', 'u1', 't', 'resume', 'v1', 1, 0, 0)`)
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO versions (id, document_id, version_number, content, content_format, checksum_sha256, created_by, created_at)
		VALUES ('v1', 'd1', 1, '', 'markdown', '', 'u1', 0)`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = db.Exec(`INSERT INTO versions (id, document_id, version_number, content, content_format, checksum_sha256, created_by, created_at)
		VALUES ('v2', 'd1', 1, '', 'markdown', '', 'u1', 0)`)
	require.Error(t, err)

	_, err = db.Exec(`INSERT INTO documents (id, owner_id, title, type, current_version_id, current_version_number, created_at, updated_at)
		VALUES ('d2', 'u1', 't', 'poem', 'v1', 1, 0, 0)`)
	require.Error(t, err, "unknown document type must be rejected")
}
