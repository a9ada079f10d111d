// Package mongo is a Store backed by a MongoDB collection with a 2dsphere
// index on the letter location. Proximity queries run as a $geoNear
// aggregation, which uses the 2dsphere index and the same earth radius as
// package geo.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const distanceField = "distanceMeters"

// letterDoc is the stored shape of a letter.
type letterDoc struct {
	ID         primitive.ObjectID       `bson:"_id,omitempty"`
	UserID     *string                  `bson:"userId"`
	Content    string                   `bson:"content"`
	Media      []models.MediaAttachment `bson:"media"`
	Location   models.GeoPoint          `bson:"location"`
	PlaceName  string                   `bson:"placeName"`
	Visibility models.Visibility        `bson:"visibility"`
	CreatedAt  time.Time                `bson:"createdAt"`

	// only present in $geoNear output
	DistanceMeters float64 `bson:"distanceMeters,omitempty"`
}

func fromLetter(l *models.Letter) letterDoc {
	media := l.Media
	if media == nil {
		media = []models.MediaAttachment{}
	}
	return letterDoc{
		UserID:     l.OwnerID,
		Content:    l.Content,
		Media:      media,
		Location:   l.Location,
		PlaceName:  l.PlaceName,
		Visibility: l.Visibility,
		CreatedAt:  l.CreatedAt.UTC(),
	}
}

func (d letterDoc) toLetter() *models.Letter {
	media := d.Media
	if media == nil {
		media = []models.MediaAttachment{}
	}
	return &models.Letter{
		ID:         d.ID.Hex(),
		Content:    d.Content,
		Media:      media,
		Location:   d.Location,
		PlaceName:  d.PlaceName,
		Visibility: d.Visibility,
		CreatedAt:  d.CreatedAt.UTC(),
		OwnerID:    d.UserID,
	}
}

// Store keeps letters in a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger
}

// Connect dials MongoDB, verifies the connection and ensures indexes.
func Connect(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s, err := New(ctx, client.Database(database).Collection(collection), logger)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.client = client
	return s, nil
}

// New wraps an existing collection and creates the indexes queries rely on.
func New(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) (*Store, error) {
	s := &Store{
		coll: coll,
		log:  logger.With(zap.String("component", "mongo-store")),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("location_2dsphere"),
		},
		{
			Keys:    bson.D{{Key: "visibility", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("visibility_created_idx"),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, letter *models.Letter) (string, error) {
	if err := store.ValidateForInsert(letter); err != nil {
		return "", err
	}

	doc := fromLetter(letter)
	doc.ID = primitive.NewObjectID()

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert letter: %w", err)
	}

	letter.ID = doc.ID.Hex()
	return letter.ID, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*models.Letter, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.NotFound(id)
	}

	var doc letterDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("find letter: %w", err)
	}
	return doc.toLetter(), nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) (*models.Letter, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.NotFound(id)
	}

	var doc letterDoc
	if err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("delete letter: %w", err)
	}
	return doc.toLetter(), nil
}

// QueryNear implements store.Store.
func (s *Store) QueryNear(ctx context.Context, q store.NearQuery) ([]models.NearbyLetter, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cur, err := s.coll.Aggregate(ctx, nearPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("geoNear aggregate: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.NearbyLetter{}
	for cur.Next(ctx) {
		var doc letterDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode letter: %w", err)
		}
		out = append(out, models.NearbyLetter{Letter: doc.toLetter(), DistanceMeters: doc.DistanceMeters})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("geoNear cursor: %w", err)
	}
	return out, nil
}

// nearPipeline builds the $geoNear aggregation. $geoNear applies the
// visibility query before distances are sorted, and $limit comes last.
func nearPipeline(q store.NearQuery) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: models.GeoPointType},
				{Key: "coordinates", Value: bson.A{q.Center.Lng(), q.Center.Lat()}},
			}},
			{Key: "distanceField", Value: distanceField},
			{Key: "spherical", Value: true},
			{Key: "maxDistance", Value: q.MaxDistanceMeters},
			{Key: "query", Value: bson.D{{Key: "visibility", Value: string(q.Visibility)}}},
			{Key: "key", Value: "location"},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: distanceField, Value: 1},
			{Key: "createdAt", Value: -1},
		}}},
		{{Key: "$limit", Value: int64(q.Limit)}},
	}
}

// Close implements store.Store.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
