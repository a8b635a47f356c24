// Package versions is the append-only ledger of document content snapshots.
//
// Every mutation holds the document's lock while it reads the highest version
// number and writes the next one, and the repository rejects duplicate
// (document, number) pairs. A rejected write is retried once with a fresh
// number before the conflict is reported.
package versions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/repository"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/draftledger/draftledger/backend/go-services/pkg/metrics"
	"github.com/google/uuid"
)

// Store is the VersionStore: it owns version numbering and the current pointer.
type Store struct {
	repo       repository.Repository
	locker     Locker
	lockerName string
	now        func() time.Time
	newID      func() string
}

type Option func(*Store)

// WithLocker replaces the default in-process locker.
func WithLocker(name string, l Locker) Option {
	return func(s *Store) {
		s.locker = l
		s.lockerName = name
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		locker:     NewLocalLocker(),
		lockerName: "local",
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lock(ctx context.Context, docID string) (func(), error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, docID)
	metrics.LockWait.WithLabelValues(s.lockerName).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("lock document %s: %w", docID, err)
	}
	return unlock, nil
}

func (s *Store) newVersion(docID string, number int, d document.Draft) *document.Version {
	format := d.Format
	if format == "" {
		format = document.DefaultFormat
	}
	return &document.Version{
		ID:             s.newID(),
		DocumentID:     docID,
		VersionNumber:  number,
		Content:        d.Content,
		ContentFormat:  format,
		ChecksumSHA256: document.Checksum(d.Content),
		CreatedBy:      d.Author,
		CreatedAt:      s.now().UTC(),
	}
}

// CreateInitial persists doc together with version 1 and makes it current.
// doc.ID must already be assigned. It fails with ErrAlreadyInitialized when
// the document already has versions.
func (s *Store) CreateInitial(ctx context.Context, doc *document.Document, d document.Draft) (*document.Version, error) {
	unlock, err := s.lock(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := s.repo.LatestVersionNumber(ctx, doc.ID)
	switch {
	case err == nil && n > 0:
		logger.Errorw("initial version requested twice", "doc", doc.ID, "latest", n)
		return nil, document.ErrAlreadyInitialized
	case err != nil && !errors.Is(err, document.ErrNotFound):
		return nil, err
	}

	v := s.newVersion(doc.ID, 1, d)
	doc.CurrentVersionID = v.ID
	doc.CurrentVersionNumber = v.VersionNumber
	doc.CreatedAt = v.CreatedAt
	doc.UpdatedAt = v.CreatedAt
	if err := s.repo.CreateDocument(ctx, doc, v); err != nil {
		if errors.Is(err, document.ErrAlreadyInitialized) {
			logger.Errorw("initial version requested twice", "doc", doc.ID)
		}
		return nil, err
	}
	doc.Versions = []*document.Version{v}
	metrics.VersionsCreated.WithLabelValues("create").Inc()
	return v, nil
}

// AppendVersion writes max(version numbers)+1 and makes it current.
func (s *Store) AppendVersion(ctx context.Context, docID string, d document.Draft) (*document.Version, error) {
	unlock, err := s.lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, err := s.appendLocked(ctx, docID, d, nil)
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreated.WithLabelValues("append").Inc()
	return v, nil
}

// Revert copies the content and format of version number into a new version
// and makes that current. History is never rewound.
func (s *Store) Revert(ctx context.Context, docID string, number int, author string) (*document.Version, error) {
	unlock, err := s.lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target, err := s.repo.GetVersion(ctx, docID, number)
	if err != nil {
		return nil, err
	}
	from := target.VersionNumber
	v, err := s.appendLocked(ctx, docID, document.Draft{
		Content: target.Content,
		Format:  target.ContentFormat,
		Author:  author,
	}, &from)
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreated.WithLabelValues("revert").Inc()
	return v, nil
}

// appendLocked must run under the document lock. A storage-level conflict
// means some writer bypassed our lock (another replica with a local locker,
// or an expired lease); recompute the number and try exactly once more.
func (s *Store) appendLocked(ctx context.Context, docID string, d document.Draft, revertedFrom *int) (*document.Version, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		latest, err := s.repo.LatestVersionNumber(ctx, docID)
		if err != nil {
			return nil, err
		}
		v := s.newVersion(docID, latest+1, d)
		v.RevertedFrom = revertedFrom
		err = s.repo.AppendVersion(ctx, v)
		if err == nil {
			if attempt > 0 {
				metrics.VersionConflicts.WithLabelValues("retried").Inc()
			}
			return v, nil
		}
		if !errors.Is(err, document.ErrVersionConflict) {
			return nil, err
		}
		logger.Warnw("version number conflict", "doc", docID, "number", v.VersionNumber, "attempt", attempt+1)
		lastErr = err
	}
	metrics.VersionConflicts.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("append version to %s: %w", docID, lastErr)
}

// GetVersion is an exact-number lookup.
func (s *Store) GetVersion(ctx context.Context, docID string, number int) (*document.Version, error) {
	return s.repo.GetVersion(ctx, docID, number)
}

// ListVersions returns every version, newest first.
func (s *Store) ListVersions(ctx context.Context, docID string) ([]*document.Version, error) {
	vs, err := s.repo.ListVersions(ctx, docID)
	if err != nil {
		return nil, err
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].VersionNumber > vs[j].VersionNumber })
	return vs, nil
}
