package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Type is the category of a document. The set is closed.
type Type string

const (
	TypeResume Type = "resume"
	TypeLetter Type = "letter"
	TypeSOP    Type = "sop"
)

// Types lists every accepted document type.
var Types = []Type{TypeResume, TypeLetter, TypeSOP}

// Valid reports whether t is one of the known document types.
func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

const (
	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
	FormatHTML     = "html"
)

// DefaultFormat is used when a caller does not tag its content.
const DefaultFormat = FormatMarkdown

// Document is a titled, typed container for an evolving piece of user content.
// CurrentVersionID always points at one of the document's own versions once
// the document has been created.
type Document struct {
	ID                   string     `json:"id" bson:"_id"`
	OwnerID              string     `json:"ownerId" bson:"ownerId"`
	Title                string     `json:"title" bson:"title"`
	Type                 Type       `json:"type" bson:"type"`
	CurrentVersionID     string     `json:"currentVersionId" bson:"currentVersionId"`
	CurrentVersionNumber int        `json:"currentVersionNumber" bson:"currentVersionNumber"`
	Versions             []*Version `json:"versions,omitempty" bson:"versions,omitempty"`
	CreatedAt            time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt" bson:"updatedAt"`
	DeletedAt            *time.Time `json:"-" bson:"deletedAt,omitempty"`
}

// Summary is the listing view of a document (no version payloads).
func (d *Document) Summary() Summary {
	return Summary{
		ID:                   d.ID,
		Title:                d.Title,
		Type:                 d.Type,
		CurrentVersionID:     d.CurrentVersionID,
		CurrentVersionNumber: d.CurrentVersionNumber,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// Summary is what the document list endpoint returns.
type Summary struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Type                 Type      `json:"type"`
	CurrentVersionID     string    `json:"currentVersionId"`
	CurrentVersionNumber int       `json:"currentVersionNumber"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Version is an immutable content snapshot. Nothing mutates a Version after
// it has been written.
type Version struct {
	ID             string    `json:"id" bson:"id"`
	DocumentID     string    `json:"documentId" bson:"documentId"`
	VersionNumber  int       `json:"versionNumber" bson:"versionNumber"`
	Content        string    `json:"content" bson:"content"`
	ContentFormat  string    `json:"contentFormat" bson:"contentFormat"`
	ChecksumSHA256 string    `json:"checksumSha256" bson:"checksumSha256"`
	CreatedBy      string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	RevertedFrom   *int      `json:"revertedFrom,omitempty" bson:"revertedFrom,omitempty"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

// Draft is the caller-supplied payload for a new version.
type Draft struct {
	Content string
	Format  string
	Author  string
}

// Checksum returns the hex encoded SHA-256 of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
