package repository

import (
	"context"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
)

// Repository persists documents and their versions.
//
// Implementations must make CreateDocument and AppendVersion all-or-nothing:
// the version row and the document's current pointer are written together.
// AppendVersion must return document.ErrVersionConflict when the
// (document, version number) pair already exists.
// Deleted documents behave as missing for every read and write.
type Repository interface {
	CreateDocument(ctx context.Context, doc *document.Document, initial *document.Version) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	// ListDocuments returns the owner's documents, most recently updated
	// first. An empty docType matches every type.
	ListDocuments(ctx context.Context, ownerID string, docType document.Type) ([]*document.Document, error)
	RenameDocument(ctx context.Context, id, title string, at time.Time) error
	DeleteDocument(ctx context.Context, id string, at time.Time) error

	// LatestVersionNumber returns the highest version number, 0 if none.
	LatestVersionNumber(ctx context.Context, documentID string) (int, error)
	AppendVersion(ctx context.Context, v *document.Version) error
	GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error)
	// ListVersions returns versions in ascending version number order.
	ListVersions(ctx context.Context, documentID string) ([]*document.Version, error)

	Ping(ctx context.Context) error
}
