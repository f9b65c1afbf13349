package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection onto a MongoDB collection. Documents are
// stored as {_id, body, created_at} so filters only ever address the body.
type MongoStore struct {
	db  *mongo.Database
	now func() time.Time
}

// ConnectMongo dials and pings a MongoDB deployment.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoStore wraps a database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	if db == nil {
		panic("store: mongo database required")
	}
	return &MongoStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (m *MongoStore) toBSON(body any) (bson.D, Document, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, Document{}, err
	}
	var inner bson.D
	if err := bson.UnmarshalExtJSON(payload, false, &inner); err != nil {
		return nil, Document{}, fmt.Errorf("store: body must be a json object: %w", err)
	}
	doc := Document{ID: uuid.NewString(), Body: payload, CreatedAt: m.now()}
	return bson.D{
		{Key: "_id", Value: doc.ID},
		{Key: "body", Value: inner},
		{Key: "created_at", Value: doc.CreatedAt},
	}, doc, nil
}

func (m *MongoStore) Insert(ctx context.Context, collection string, body any) (Document, error) {
	record, doc, err := m.toBSON(body)
	if err != nil {
		return Document{}, err
	}
	if _, err := m.db.Collection(collection).InsertOne(ctx, record); err != nil {
		return Document{}, fmt.Errorf("store: insert %s: %w", collection, err)
	}
	return doc, nil
}

func (m *MongoStore) InsertMany(ctx context.Context, collection string, bodies []any) (int, error) {
	if len(bodies) == 0 {
		return 0, nil
	}
	records := make([]interface{}, 0, len(bodies))
	for i, body := range bodies {
		record, _, err := m.toBSON(body)
		if err != nil {
			return 0, fmt.Errorf("store: document %d: %w", i, err)
		}
		records = append(records, record)
	}
	res, err := m.db.Collection(collection).InsertMany(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("store: insert many %s: %w", collection, err)
	}
	return len(res.InsertedIDs), nil
}

func (m *MongoStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	match, err := mongoFilter(filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cursor, err := m.db.Collection(collection).Find(ctx, match, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []Document
	for cursor.Next(ctx) {
		doc, err := decodeMongoDocument(cursor.Current)
		if err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("store: find %s: %w", collection, err)
	}
	return out, nil
}

func (m *MongoStore) FindByID(ctx context.Context, collection, id string) (*Document, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	doc, err := decodeMongoDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", collection, err)
	}
	return &doc, nil
}

func (m *MongoStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	match, err := mongoFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := m.db.Collection(collection).DeleteMany(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("store: delete %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func decodeMongoDocument(raw bson.Raw) (Document, error) {
	var doc Document
	id, ok := raw.Lookup("_id").StringValueOK()
	if !ok {
		return doc, fmt.Errorf("document id is not a string")
	}
	doc.ID = id
	if created, ok := raw.Lookup("created_at").TimeOK(); ok {
		doc.CreatedAt = created.UTC()
	}
	inner, ok := raw.Lookup("body").DocumentOK()
	if !ok {
		return doc, fmt.Errorf("document %s has no body", id)
	}
	body, err := bson.MarshalExtJSON(inner, false, false)
	if err != nil {
		return doc, err
	}
	doc.Body = body
	return doc, nil
}

// mongoFilter flattens a containment filter into dotted body paths; arrays
// become $all matches.
func mongoFilter(filter Filter) (bson.M, error) {
	out := bson.M{}
	if len(filter) == 0 {
		return out, nil
	}
	generic, err := normalize(filter)
	if err != nil {
		return nil, fmt.Errorf("store: filter: %w", err)
	}
	flattenFilter("body", generic, out)
	return out, nil
}

func flattenFilter(prefix string, value any, out bson.M) {
	switch v := value.(type) {
	case map[string]any:
		for k, inner := range v {
			flattenFilter(prefix+"."+k, inner, out)
		}
	case []any:
		out[prefix] = bson.M{"$all": v}
	default:
		out[prefix] = v
	}
}
