package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores each document as one Mongo record with its versions
// embedded. A single UpdateOne pushes the new version and moves the current
// pointer, so both writes commit or neither does without needing a replica
// set transaction. The version-number uniqueness guard lives in the update
// filter.
type MongoRepo struct {
	col *mongo.Collection
}

// NewMongoRepo ensures the listing index and returns the repository.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "updatedAt", Value: -1}}}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, document.Unavailable("mongo create index", err)
	}
	return &MongoRepo{col: col}, nil
}

// alive matches records that have not been soft deleted.
func alive(id string) bson.M {
	return bson.M{"_id": id, "deletedAt": bson.M{"$exists": false}}
}

var withoutVersions = bson.M{"versions": 0}

func (m *MongoRepo) CreateDocument(ctx context.Context, doc *document.Document, initial *document.Version) error {
	rec := *doc
	rec.Versions = []*document.Version{initial}
	if _, err := m.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return document.ErrAlreadyInitialized
		}
		return document.Unavailable("mongo insert document", err)
	}
	return nil
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, alive(id), options.FindOne().SetProjection(withoutVersions)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, document.Unavailable("mongo find document", err)
	}
	return &d, nil
}

func (m *MongoRepo) ListDocuments(ctx context.Context, ownerID string, docType document.Type) ([]*document.Document, error) {
	filter := bson.M{"ownerId": ownerID, "deletedAt": bson.M{"$exists": false}}
	if docType != "" {
		filter["type"] = docType
	}
	opts := options.Find().
		SetProjection(withoutVersions).
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, document.Unavailable("mongo list documents", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, document.Unavailable("mongo decode document", err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, document.Unavailable("mongo cursor", err)
	}
	return out, nil
}

func (m *MongoRepo) RenameDocument(ctx context.Context, id, title string, at time.Time) error {
	return m.updateAlive(ctx, id, bson.M{"$set": bson.M{"title": title, "updatedAt": at}})
}

func (m *MongoRepo) DeleteDocument(ctx context.Context, id string, at time.Time) error {
	return m.updateAlive(ctx, id, bson.M{"$set": bson.M{"deletedAt": at, "updatedAt": at}})
}

func (m *MongoRepo) updateAlive(ctx context.Context, id string, update bson.M) error {
	res, err := m.col.UpdateOne(ctx, alive(id), update)
	if err != nil {
		return document.Unavailable("mongo update document", err)
	}
	if res.MatchedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) LatestVersionNumber(ctx context.Context, documentID string) (int, error) {
	var rec struct {
		Versions []struct {
			VersionNumber int `bson:"versionNumber"`
		} `bson:"versions"`
	}
	opts := options.FindOne().SetProjection(bson.M{"versions.versionNumber": 1})
	if err := m.col.FindOne(ctx, alive(documentID), opts).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, document.ErrNotFound
		}
		return 0, document.Unavailable("mongo latest version", err)
	}
	max := 0
	for _, v := range rec.Versions {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max, nil
}

func (m *MongoRepo) AppendVersion(ctx context.Context, v *document.Version) error {
	filter := alive(v.DocumentID)
	filter["versions.versionNumber"] = bson.M{"$ne": v.VersionNumber}
	update := bson.M{
		"$push": bson.M{"versions": v},
		"$set": bson.M{
			"currentVersionId":     v.ID,
			"currentVersionNumber": v.VersionNumber,
			"updatedAt":            v.CreatedAt,
		},
	}
	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return document.Unavailable("mongo append version", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	// the filter failed: either the document is gone or the number is taken
	if _, err := m.GetDocument(ctx, v.DocumentID); err != nil {
		return err
	}
	return document.ErrVersionConflict
}

func (m *MongoRepo) GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error) {
	var rec struct {
		Versions []*document.Version `bson:"versions"`
	}
	opts := options.FindOne().SetProjection(bson.M{
		"versions": bson.M{"$elemMatch": bson.M{"versionNumber": number}},
	})
	if err := m.col.FindOne(ctx, alive(documentID), opts).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, document.Unavailable("mongo get version", err)
	}
	if len(rec.Versions) == 0 {
		return nil, document.ErrVersionNotFound
	}
	return rec.Versions[0], nil
}

func (m *MongoRepo) ListVersions(ctx context.Context, documentID string) ([]*document.Version, error) {
	var rec struct {
		Versions []*document.Version `bson:"versions"`
	}
	opts := options.FindOne().SetProjection(bson.M{"versions": 1})
	if err := m.col.FindOne(ctx, alive(documentID), opts).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, document.Unavailable("mongo list versions", err)
	}
	sort.Slice(rec.Versions, func(i, j int) bool {
		return rec.Versions[i].VersionNumber < rec.Versions[j].VersionNumber
	})
	return rec.Versions, nil
}

func (m *MongoRepo) Ping(ctx context.Context) error {
	if err := m.col.Database().Client().Ping(ctx, nil); err != nil {
		return document.Unavailable("mongo ping", err)
	}
	return nil
}
