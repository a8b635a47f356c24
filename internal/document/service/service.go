package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/repository"
	"github.com/draftledger/draftledger/backend/go-services/internal/document/versions"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service is the DocumentService: document lifecycle plus the ownership gate
// in front of the version store. Every method that takes a callerID returns
// document.ErrNotFound for a missing document and document.ErrForbidden for
// one owned by somebody else.
type Service interface {
	Create(ctx context.Context, ownerID string, in CreateInput) (*document.Document, error)
	List(ctx context.Context, ownerID string, docType document.Type) ([]document.Summary, error)
	Get(ctx context.Context, docID, callerID string) (*document.Document, error)
	SaveNewVersion(ctx context.Context, docID, callerID string, in VersionInput) (*document.Document, error)
	RevertToVersion(ctx context.Context, docID, callerID string, number int) (*document.Document, error)
	PreviewVersion(ctx context.Context, docID, callerID string, number int) (*document.Version, error)
	ListVersions(ctx context.Context, docID, callerID string) ([]*document.Version, error)
	Rename(ctx context.Context, docID, callerID, title string) (*document.Document, error)
	Delete(ctx context.Context, docID, callerID string) error
	ExportVersion(ctx context.Context, docID, callerID string, number int) (string, error)
	Ready(ctx context.Context) error
}

// Archive keeps a copy of each version outside the primary store and hands
// out time-limited download links.
type Archive interface {
	Put(ctx context.Context, v *document.Version) error
	URL(ctx context.Context, v *document.Version, ttl time.Duration) (string, error)
}

type Options struct {
	MaxContentChars int
	// Archive is optional; without it ExportVersion returns ErrArchiveUnavailable.
	Archive   Archive
	ExportTTL time.Duration
}

// New wires a Service over repo. store must be built on the same repository.
func New(repo repository.Repository, store *versions.Store, opts Options) Service {
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = DefaultMaxContentChars
	}
	if opts.ExportTTL <= 0 {
		opts.ExportTTL = 15 * time.Minute
	}
	return &documentService{
		repo:      repo,
		store:     store,
		validate:  newValidator(opts.MaxContentChars),
		archive:   opts.Archive,
		exportTTL: opts.ExportTTL,
		now:       time.Now,
	}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	repo := repository.NewMemoryRepo()
	return New(repo, versions.NewStore(repo), Options{})
}

type documentService struct {
	repo      repository.Repository
	store     *versions.Store
	validate  *validator.Validate
	archive   Archive
	exportTTL time.Duration
	now       func() time.Time
}

func (s *documentService) authorize(ctx context.Context, docID, callerID string) (*document.Document, error) {
	d, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if callerID == "" || d.OwnerID != callerID {
		return nil, document.ErrForbidden
	}
	return d, nil
}

// load returns the document with its full version list, newest first.
func (s *documentService) load(ctx context.Context, docID string) (*document.Document, error) {
	d, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	vs, err := s.store.ListVersions(ctx, docID)
	if err != nil {
		return nil, err
	}
	d.Versions = vs
	return d, nil
}

// archiveVersion is best effort: the primary store already committed.
func (s *documentService) archiveVersion(ctx context.Context, v *document.Version) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Put(ctx, v); err != nil {
		logger.Warnw("archive version failed", "doc", v.DocumentID, "version", v.VersionNumber, "err", err)
	}
}

func (s *documentService) Create(ctx context.Context, ownerID string, in CreateInput) (*document.Document, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", document.ErrInvalidInput)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = defaultTitle
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	doc := &document.Document{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   in.Title,
		Type:    in.Type,
	}
	v, err := s.store.CreateInitial(ctx, doc, document.Draft{Content: in.Content, Format: in.ContentFormat, Author: ownerID})
	if err != nil {
		return nil, err
	}
	logger.Infow("document created", "doc", doc.ID, "type", doc.Type, "owner", ownerID)
	s.archiveVersion(ctx, v)
	return doc, nil
}

// List returns the owner's documents. An empty docType lists every type.
func (s *documentService) List(ctx context.Context, ownerID string, docType document.Type) ([]document.Summary, error) {
	if docType != "" && !docType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", document.ErrInvalidInput, docType)
	}
	docs, err := s.repo.ListDocuments(ctx, ownerID, docType)
	if err != nil {
		return nil, err
	}
	out := make([]document.Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Summary())
	}
	return out, nil
}

func (s *documentService) Get(ctx context.Context, docID, callerID string) (*document.Document, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	return s.load(ctx, docID)
}

func (s *documentService) SaveNewVersion(ctx context.Context, docID, callerID string, in VersionInput) (*document.Document, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	v, err := s.store.AppendVersion(ctx, docID, document.Draft{Content: in.Content, Format: in.ContentFormat, Author: callerID})
	if err != nil {
		return nil, err
	}
	logger.Debugw("version saved", "doc", docID, "version", v.VersionNumber)
	s.archiveVersion(ctx, v)
	return s.load(ctx, docID)
}

func (s *documentService) RevertToVersion(ctx context.Context, docID, callerID string, number int) (*document.Document, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	v, err := s.store.Revert(ctx, docID, number, callerID)
	if err != nil {
		return nil, err
	}
	logger.Infow("document reverted", "doc", docID, "from", number, "version", v.VersionNumber)
	s.archiveVersion(ctx, v)
	return s.load(ctx, docID)
}

func (s *documentService) PreviewVersion(ctx context.Context, docID, callerID string, number int) (*document.Version, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	return s.store.GetVersion(ctx, docID, number)
}

func (s *documentService) ListVersions(ctx context.Context, docID, callerID string) ([]*document.Version, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, docID)
}

func (s *documentService) Rename(ctx context.Context, docID, callerID, title string) (*document.Document, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return nil, err
	}
	in := renameInput{Title: strings.TrimSpace(title)}
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := s.repo.RenameDocument(ctx, docID, in.Title, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.load(ctx, docID)
}

func (s *documentService) Delete(ctx context.Context, docID, callerID string) error {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, docID, s.now().UTC()); err != nil {
		return err
	}
	logger.Infow("document deleted", "doc", docID)
	return nil
}

// ExportVersion re-uploads the snapshot before signing so that a link is
// never handed out for an object whose write-time archive attempt failed.
func (s *documentService) ExportVersion(ctx context.Context, docID, callerID string, number int) (string, error) {
	if _, err := s.authorize(ctx, docID, callerID); err != nil {
		return "", err
	}
	if s.archive == nil {
		return "", document.ErrArchiveUnavailable
	}
	v, err := s.store.GetVersion(ctx, docID, number)
	if err != nil {
		return "", err
	}
	if err := s.archive.Put(ctx, v); err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrArchiveUnavailable, err)
	}
	return s.archive.URL(ctx, v, s.exportTTL)
}

func (s *documentService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
