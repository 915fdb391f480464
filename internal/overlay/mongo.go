package overlay

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding overlay documents.
const CollectionName = "overlays"

// mongoOverlay is the stored shape: identical field names, ObjectID identity.
type mongoOverlay struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	StreamKey string             `bson:"stream_key"`
	Type      string             `bson:"type"`
	X         int                `bson:"x"`
	Y         int                `bson:"y"`
	Width     *float64           `bson:"width"`
	Height    *float64           `bson:"height"`
	Opacity   float64            `bson:"opacity"`
	Text      *string            `bson:"text"`
	Color     *string            `bson:"color"`
	BgColor   *string            `bson:"bgColor"`
	FontSize  *float64           `bson:"fontSize"`
	URL       *string            `bson:"url"`
	Alt       *string            `bson:"alt"`
}

func toMongo(o Overlay) mongoOverlay {
	m := mongoOverlay{
		StreamKey: o.StreamKey,
		Type:      o.Type,
		X:         o.X,
		Y:         o.Y,
		Width:     o.Width,
		Height:    o.Height,
		Opacity:   o.Opacity,
		Text:      o.Text,
		Color:     o.Color,
		BgColor:   o.BgColor,
		FontSize:  o.FontSize,
		URL:       o.URL,
		Alt:       o.Alt,
	}
	if oid, err := primitive.ObjectIDFromHex(o.ID); err == nil {
		m.ID = oid
	}
	return m
}

func (m mongoOverlay) overlay() Overlay {
	return Overlay{
		ID:        m.ID.Hex(),
		StreamKey: m.StreamKey,
		Type:      m.Type,
		X:         m.X,
		Y:         m.Y,
		Width:     m.Width,
		Height:    m.Height,
		Opacity:   m.Opacity,
		Text:      m.Text,
		Color:     m.Color,
		BgColor:   m.BgColor,
		FontSize:  m.FontSize,
		URL:       m.URL,
		Alt:       m.Alt,
	}
}

func listFilter(streamKey string) bson.M {
	if streamKey == "" {
		return bson.M{}
	}
	return bson.M{"stream_key": streamKey}
}

func setDocument(p Patch) bson.M {
	return bson.M{"$set": bson.M(p.Map())}
}

// MongoStore is the MongoDB-backed Store. ObjectIDs are time-ordered, so
// sorting by _id yields creation order.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri and uses the overlays collection of database.
// The driver connects lazily; a failed ping is returned alongside the usable
// store so callers can decide whether to continue.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(CollectionName),
	}
	if err := client.Ping(ctx, nil); err != nil {
		return s, fmt.Errorf("mongo: ping: %w", err)
	}
	return s, nil
}

// List implements Store.List.
func (s *MongoStore) List(ctx context.Context, streamKey string) ([]Overlay, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, listFilter(streamKey), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	var docs []mongoOverlay
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}

	out := make([]Overlay, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.overlay())
	}
	return out, nil
}

// Insert implements Store.Insert.
func (s *MongoStore) Insert(ctx context.Context, o Overlay) (Overlay, error) {
	o.ID = ""
	res, err := s.coll.InsertOne(ctx, toMongo(o))
	if err != nil {
		return Overlay{}, fmt.Errorf("mongo: insert: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return Overlay{}, fmt.Errorf("mongo: unexpected inserted id %T", res.InsertedID)
	}
	o.ID = oid.Hex()
	return o, nil
}

// Update implements Store.Update. Ids that are not ObjectIDs cannot exist and
// report ErrNotFound.
func (s *MongoStore) Update(ctx context.Context, id string, p Patch) (Overlay, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Overlay{}, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoOverlay
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, setDocument(p), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Overlay{}, ErrNotFound
	}
	if err != nil {
		return Overlay{}, fmt.Errorf("mongo: update: %w", err)
	}
	return doc.overlay(), nil
}

// Delete implements Store.Delete.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("mongo: delete: %w", err)
	}
	return nil
}

// Close implements Store.Close.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
