package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
)

const defaultMongoDatabase = "ghlexport"

// MongoStore keeps one document per save. The payload is stored as a
// native document so it can be queried in place.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       options
	logger     *zap.Logger
}

type mongoSnapshot struct {
	ID          string      `bson:"_id"`
	ModuleID    string      `bson:"module_id"`
	LocationID  string      `bson:"location_id"`
	Description string      `bson:"description"`
	Data        interface{} `bson:"data"`
	RecordCount int         `bson:"record_count"`
	ExportedAt  time.Time   `bson:"exported_at"`
}

// NewMongoStore connects to uri. Nested documents decode as maps so that
// payloads read back as plain JSON.
func NewMongoStore(ctx context.Context, uri, database, collection string, opts ...Option) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	collection, err := tableName(collection)
	if err != nil {
		return nil, err
	}

	clientOpts := mongooptions.Client().
		ApplyURI(uri).
		SetAppName("ghlexport").
		SetBSONOptions(&mongooptions.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping mongodb")
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "location_id", Value: 1}, {Key: "module_id", Value: 1}, {Key: "exported_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypePersistence, "failed to create mongodb index")
	}

	o := buildOptions(opts)
	return &MongoStore{
		client:     client,
		collection: coll,
		opts:       o,
		logger:     o.logger.With(zap.String("store", "mongo")),
	}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error) {
	doc, err := newDocument(domain, data, locationID, description, s.opts.clock())
	if err != nil {
		return nil, err
	}
	_, err = s.collection.InsertOne(ctx, mongoSnapshot{
		ID:          doc.id,
		ModuleID:    doc.domain,
		LocationID:  doc.locationID,
		Description: doc.description,
		Data:        doc.value,
		RecordCount: doc.count,
		ExportedAt:  doc.exportedAt,
	})
	if err != nil {
		return nil, persistenceError(err, "mongo", "save", domain)
	}
	s.logger.Debug("snapshot saved", zap.String("domain", domain), zap.Int("count", doc.count))
	return doc.ack(s.collection.Database().Name() + "." + s.collection.Name()), nil
}

// Read implements Store.
func (s *MongoStore) Read(ctx context.Context, domain, locationID string) (*Snapshot, error) {
	filter := bson.D{{Key: "module_id", Value: domain}, {Key: "location_id", Value: locationID}}
	findOpts := mongooptions.FindOne().SetSort(bson.D{{Key: "exported_at", Value: -1}})

	var doc mongoSnapshot
	err := s.collection.FindOne(ctx, filter, findOpts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError(err, "mongo", "read", domain)
	}

	raw, err := jsonpool.Marshal(doc.Data)
	if err != nil {
		return nil, persistenceError(err, "mongo", "read", domain)
	}
	return &Snapshot{
		ID:          doc.ID,
		Domain:      domain,
		LocationID:  locationID,
		Description: doc.Description,
		Count:       doc.RecordCount,
		ExportedAt:  doc.ExportedAt.UTC(),
		Data:        raw,
	}, nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, locationID string) (Manifest, error) {
	findOpts := mongooptions.Find().
		SetSort(bson.D{{Key: "exported_at", Value: 1}}).
		SetProjection(bson.D{{Key: "data", Value: 0}})
	cursor, err := s.collection.Find(ctx, bson.D{{Key: "location_id", Value: locationID}}, findOpts)
	if err != nil {
		return nil, persistenceError(err, "mongo", "list", "")
	}
	defer cursor.Close(ctx)

	m := Manifest{}
	for cursor.Next(ctx) {
		var doc mongoSnapshot
		if err := cursor.Decode(&doc); err != nil {
			return nil, persistenceError(err, "mongo", "list", "")
		}
		m[doc.ModuleID] = ManifestEntry{
			ID:          doc.ID,
			Count:       doc.RecordCount,
			ExportedAt:  doc.ExportedAt.UTC(),
			Description: doc.Description,
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, persistenceError(err, "mongo", "list", "")
	}
	return m, nil
}

// Close implements Store.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
