package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/database"
	"github.com/draftledger/draftledger/backend/go-services/internal/database/migrations"
	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/repository"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/versions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	mu   sync.Mutex
	puts map[string]string
	err  error
}

func newFakeArchive() *fakeArchive { return &fakeArchive{puts: map[string]string{}} }

func key(v *document.Version) string { return fmt.Sprintf("%s/%d", v.DocumentID, v.VersionNumber) }

func (f *fakeArchive) Put(_ context.Context, v *document.Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.puts[key(v)] = v.Content
	return nil
}

func (f *fakeArchive) URL(_ context.Context, v *document.Version, ttl time.Duration) (string, error) {
	return "https://archive.test/" + key(v) + "?ttl=" + ttl.String(), nil
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func services(t *testing.T, opts Options, fn func(t *testing.T, svc Service)) {
	t.Run("memory", func(t *testing.T) {
		repo := repository.NewMemoryRepo()
		fn(t, New(repo, versions.NewStore(repo), opts))
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, migrations.MigrateUp(db))
		repo := repository.NewSQLiteRepo(db)
		fn(t, New(repo, versions.NewStore(repo), opts))
	})
}

func TestDraftScenario(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		doc, err := svc.Create(ctx, "alice", CreateInput{Title: "Resume", Type: document.TypeResume, Content: "Draft A"})
		require.NoError(t, err)
		require.Equal(t, 1, doc.CurrentVersionNumber)
		require.Len(t, doc.Versions, 1)
		require.Equal(t, doc.Versions[0].ID, doc.CurrentVersionID)

		doc, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "Draft B"})
		require.NoError(t, err)
		require.Equal(t, 2, doc.CurrentVersionNumber)
		v1, err := svc.PreviewVersion(ctx, doc.ID, "alice", 1)
		require.NoError(t, err)
		require.Equal(t, "Draft A", v1.Content)

		doc, err = svc.RevertToVersion(ctx, doc.ID, "alice", 1)
		require.NoError(t, err)
		require.Equal(t, 3, doc.CurrentVersionNumber)
		require.Len(t, doc.Versions, 3)
		require.Equal(t, 3, doc.Versions[0].VersionNumber, "newest first")
		require.Equal(t, "Draft A", doc.Versions[0].Content)
		require.Equal(t, doc.Versions[0].ID, doc.CurrentVersionID)

		v2, err := svc.PreviewVersion(ctx, doc.ID, "alice", 2)
		require.NoError(t, err)
		require.Equal(t, "Draft B", v2.Content)
	})
}

func TestRevertPreservesHistory(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeSOP, Content: "one"})
		require.NoError(t, err)
		require.Equal(t, "Untitled", doc.Title)
		_, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "two", ContentFormat: document.FormatPlain})
		require.NoError(t, err)
		_, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "three"})
		require.NoError(t, err)

		before, err := svc.ListVersions(ctx, doc.ID, "alice")
		require.NoError(t, err)

		doc, err = svc.RevertToVersion(ctx, doc.ID, "alice", 2)
		require.NoError(t, err)
		require.Equal(t, 4, doc.CurrentVersionNumber)
		latest := doc.Versions[0]
		require.Equal(t, "two", latest.Content)
		require.Equal(t, document.FormatPlain, latest.ContentFormat)
		require.NotNil(t, latest.RevertedFrom)
		require.Equal(t, 2, *latest.RevertedFrom)

		// versions 1-3 are byte-for-byte what they were
		after := doc.Versions[1:]
		require.Len(t, after, len(before))
		for i := range before {
			assert.Equal(t, before[i].ID, after[i].ID)
			assert.Equal(t, before[i].Content, after[i].Content)
			assert.Equal(t, before[i].ChecksumSHA256, after[i].ChecksumSHA256)
		}

		_, err = svc.RevertToVersion(ctx, doc.ID, "alice", 42)
		require.ErrorIs(t, err, document.ErrVersionNotFound)
	})
}

func TestOwnershipIsolation(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeLetter, Content: "mine"})
		require.NoError(t, err)

		_, err = svc.Get(ctx, doc.ID, "mallory")
		require.ErrorIs(t, err, document.ErrForbidden)
		_, err = svc.PreviewVersion(ctx, doc.ID, "mallory", 1)
		require.ErrorIs(t, err, document.ErrForbidden)
		_, err = svc.PreviewVersion(ctx, doc.ID, "mallory", 99)
		require.ErrorIs(t, err, document.ErrForbidden, "existence of versions must not leak")
		_, err = svc.RevertToVersion(ctx, doc.ID, "mallory", 1)
		require.ErrorIs(t, err, document.ErrForbidden)
		_, err = svc.SaveNewVersion(ctx, doc.ID, "mallory", VersionInput{Content: "theirs"})
		require.ErrorIs(t, err, document.ErrForbidden)
		_, err = svc.Rename(ctx, doc.ID, "mallory", "x")
		require.ErrorIs(t, err, document.ErrForbidden)
		require.ErrorIs(t, svc.Delete(ctx, doc.ID, "mallory"), document.ErrForbidden)
		_, err = svc.Get(ctx, doc.ID, "")
		require.ErrorIs(t, err, document.ErrForbidden)

		list, err := svc.List(ctx, "mallory", "")
		require.NoError(t, err)
		require.Empty(t, list)

		_, err = svc.Get(ctx, "does-not-exist", "alice")
		require.ErrorIs(t, err, document.ErrNotFound)

		got, err := svc.Get(ctx, doc.ID, "alice")
		require.NoError(t, err)
		require.Equal(t, 1, got.CurrentVersionNumber)
	})
}

func TestPreviewIsPure(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: "a"})
		require.NoError(t, err)
		doc, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "b"})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := svc.PreviewVersion(ctx, doc.ID, "alice", 1)
			require.NoError(t, err)
		}
		again, err := svc.Get(ctx, doc.ID, "alice")
		require.NoError(t, err)
		require.Equal(t, doc.CurrentVersionID, again.CurrentVersionID)
		require.True(t, doc.UpdatedAt.Equal(again.UpdatedAt))
	})
}

func TestMonotonicNumberingUnderConcurrency(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: "start"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%3 == 0 {
					_, err = svc.RevertToVersion(ctx, doc.ID, "alice", 1)
				} else {
					_, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "edit"})
				}
				if err != nil {
					t.Error(err)
				}
			}(i)
		}
		wg.Wait()

		got, err := svc.Get(ctx, doc.ID, "alice")
		require.NoError(t, err)
		require.Len(t, got.Versions, 9)
		for i, v := range got.Versions {
			require.Equal(t, 9-i, v.VersionNumber)
		}
		require.Equal(t, got.Versions[0].ID, got.CurrentVersionID)
	})
}

func TestValidation(t *testing.T) {
	services(t, Options{MaxContentChars: 10}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		_, err := svc.Create(ctx, "alice", CreateInput{Type: "poem"})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		_, err = svc.Create(ctx, "alice", CreateInput{})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		_, err = svc.Create(ctx, "", CreateInput{Type: document.TypeResume})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		_, err = svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: strings.Repeat("x", 11)})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		require.Contains(t, err.Error(), "Content is too long")
		_, err = svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, ContentFormat: "docx"})
		require.ErrorIs(t, err, document.ErrInvalidInput)

		// the limit counts characters, not bytes
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: strings.Repeat("é", 10)})
		require.NoError(t, err)

		_, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: strings.Repeat("y", 11)})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		_, err = svc.Rename(ctx, doc.ID, "alice", "   ")
		require.ErrorIs(t, err, document.ErrInvalidInput)

		vs, err := svc.ListVersions(ctx, doc.ID, "alice")
		require.NoError(t, err)
		require.Len(t, vs, 1, "rejected input must not create versions")
	})
}

func TestRenameListDelete(t *testing.T) {
	services(t, Options{}, func(t *testing.T, svc Service) {
		ctx := context.Background()
		a, err := svc.Create(ctx, "alice", CreateInput{Title: "A", Type: document.TypeResume})
		require.NoError(t, err)
		b, err := svc.Create(ctx, "alice", CreateInput{Title: "B", Type: document.TypeLetter})
		require.NoError(t, err)

		time.Sleep(2 * time.Millisecond)
		_, err = svc.SaveNewVersion(ctx, a.ID, "alice", VersionInput{Content: "edited"})
		require.NoError(t, err)

		list, err := svc.List(ctx, "alice", "")
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, a.ID, list[0].ID)
		require.Equal(t, 2, list[0].CurrentVersionNumber)

		renamed, err := svc.Rename(ctx, b.ID, "alice", "  Cover letter  ")
		require.NoError(t, err)
		require.Equal(t, "Cover letter", renamed.Title)
		require.Equal(t, 1, renamed.CurrentVersionNumber, "renaming does not create versions")

		require.NoError(t, svc.Delete(ctx, a.ID, "alice"))
		_, err = svc.Get(ctx, a.ID, "alice")
		require.ErrorIs(t, err, document.ErrNotFound)
		_, err = svc.PreviewVersion(ctx, a.ID, "alice", 1)
		require.ErrorIs(t, err, document.ErrNotFound)

		list, err = svc.List(ctx, "alice", "")
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, b.ID, list[0].ID)

		letters, err := svc.List(ctx, "alice", document.TypeLetter)
		require.NoError(t, err)
		require.Len(t, letters, 1)
		resumes, err := svc.List(ctx, "alice", document.TypeResume)
		require.NoError(t, err)
		require.Empty(t, resumes)
		_, err = svc.List(ctx, "alice", "novel")
		require.ErrorIs(t, err, document.ErrInvalidInput)
	})
}

func TestArchiveAndExport(t *testing.T) {
	ctx := context.Background()

	noArchive := NewMemoryService()
	doc, err := noArchive.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: "a"})
	require.NoError(t, err)
	_, err = noArchive.ExportVersion(ctx, doc.ID, "alice", 1)
	require.ErrorIs(t, err, document.ErrArchiveUnavailable)

	arc := newFakeArchive()
	services(t, Options{Archive: arc, ExportTTL: time.Minute}, func(t *testing.T, svc Service) {
		doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: "a"})
		require.NoError(t, err)
		_, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "b"})
		require.NoError(t, err)
		require.Equal(t, "b", arc.puts[doc.ID+"/2"])

		u, err := svc.ExportVersion(ctx, doc.ID, "alice", 1)
		require.NoError(t, err)
		require.Equal(t, "https://archive.test/"+doc.ID+"/1?ttl=1m0s", u)

		_, err = svc.ExportVersion(ctx, doc.ID, "alice", 5)
		require.ErrorIs(t, err, document.ErrVersionNotFound)
		_, err = svc.ExportVersion(ctx, doc.ID, "bob", 1)
		require.ErrorIs(t, err, document.ErrForbidden)
	})
	require.Equal(t, 4, arc.count())
}

func TestArchiveFailureDoesNotFailWrites(t *testing.T) {
	ctx := context.Background()
	arc := newFakeArchive()
	arc.err = errors.New("bucket offline")
	repo := repository.NewMemoryRepo()
	svc := New(repo, versions.NewStore(repo), Options{Archive: arc})

	doc, err := svc.Create(ctx, "alice", CreateInput{Type: document.TypeResume, Content: "a"})
	require.NoError(t, err)
	doc, err = svc.SaveNewVersion(ctx, doc.ID, "alice", VersionInput{Content: "b"})
	require.NoError(t, err)
	require.Equal(t, 2, doc.CurrentVersionNumber)

	_, err = svc.ExportVersion(ctx, doc.ID, "alice", 2)
	require.ErrorIs(t, err, document.ErrArchiveUnavailable)
}

func TestReady(t *testing.T) {
	require.NoError(t, NewMemoryService().Ready(context.Background()))
}
