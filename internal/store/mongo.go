// ABOUTME: MongoDB implementation of Collection using mongo-driver v2
// ABOUTME: Merge-upsert is one UpdateOne with an aggregation pipeline, so it stays atomic

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig holds connection and namespace settings for MongoCollection.
type MongoConfig struct {
	URI             string
	Database        string
	Collection      string
	UsersDatabase   string
	UsersCollection string
	AppName         string
	ConnectTimeout  time.Duration
}

// MongoCollection implements Collection on a MongoDB collection. Pipeline
// updates require MongoDB 4.2 or newer.
type MongoCollection struct {
	client *mongo.Client
	chats  *mongo.Collection
	users  *mongo.Collection
	logger *slog.Logger
}

// NewMongoCollection connects, pings, and ensures indexes.
func NewMongoCollection(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*MongoCollection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mongo")

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, connectionError("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, connectionError("ping", err)
	}

	m := &MongoCollection{
		client: client,
		chats:  client.Database(cfg.Database).Collection(cfg.Collection),
		users:  client.Database(cfg.UsersDatabase).Collection(cfg.UsersCollection),
		logger: logger,
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("MongoDB collection initialized",
		"database", cfg.Database,
		"collection", cfg.Collection)
	return m, nil
}

// ensureIndexes creates the unique channel_id index the upsert relies on,
// plus the lookup and sort indexes used by FindByParticipant.
func (m *MongoCollection) ensureIndexes(ctx context.Context) error {
	_, err := m.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "users.id", Value: 1}}},
		{Keys: bson.D{{Key: "last_update", Value: -1}}},
	})
	if err != nil {
		return connectionError("create indexes", err)
	}
	return nil
}

// Name implements Collection.
func (m *MongoCollection) Name() string { return "mongo" }

// FindByParticipant implements Collection.
func (m *MongoCollection) FindByParticipant(ctx context.Context, participantID string) ([]*Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_update", Value: -1}})
	cur, err := m.chats.Find(ctx, participantFilter(participantID), opts)
	if err != nil {
		return nil, connectionError("find", err)
	}
	defer cur.Close(ctx)

	var docs []*Document
	for cur.Next(ctx) {
		var d Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decoding conversation document: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, connectionError("iterate", err)
	}
	return docs, nil
}

// MergeUpsert implements Collection.
func (m *MongoCollection) MergeUpsert(ctx context.Context, delta *Document) error {
	_, err := m.chats.UpdateOne(ctx,
		channelFilter(delta.ChannelID),
		mergePipeline(delta),
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return connectionError("update", err)
	}
	return nil
}

// userDocument is a record in the users collection. _id is usually an
// ObjectID but older records carry strings.
type userDocument struct {
	ID    any    `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

// ListUsers implements Collection by reading the users collection.
func (m *MongoCollection) ListUsers(ctx context.Context) ([]Participant, error) {
	cur, err := m.users.Find(ctx, bson.D{})
	if err != nil {
		return nil, connectionError("find users", err)
	}

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, connectionError("read users", err)
	}

	users := make([]Participant, 0, len(docs))
	for _, d := range docs {
		users = append(users, Participant{
			ID:    userIDString(d.ID),
			Name:  d.Name,
			Email: d.Email,
		})
	}
	return users, nil
}

// Ping implements Collection.
func (m *MongoCollection) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return connectionError("ping", err)
	}
	return nil
}

// Close implements Collection.
func (m *MongoCollection) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func participantFilter(participantID string) bson.D {
	return bson.D{{Key: "users.id", Value: participantID}}
}

func channelFilter(channelID string) bson.D {
	return bson.D{{Key: "channel_id", Value: channelID}}
}

// mergePipeline builds the single-stage update pipeline for delta. Every
// expression in the $set stage sees the document as it was before the
// update, so users and messages are filtered against the stored arrays.
// Incoming values are wrapped in $literal so strings starting with "$" are
// never read as field paths.
func mergePipeline(delta *Document) mongo.Pipeline {
	users := delta.Users
	if users == nil {
		users = []Participant{}
	}
	messages := delta.Messages
	if messages == nil {
		messages = []StoredMessage{}
	}

	storedUsers := ifNullArray("$users")
	storedUserIDs := ifNullArray("$users.id")
	storedMessages := ifNullArray("$messages")

	newUsers := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: literal(users)},
		{Key: "as", Value: "u"},
		{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$$u.id", storedUserIDs}}},
		}}}},
	}}}

	newMessages := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: literal(messages)},
		{Key: "as", Value: "m"},
		{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$$m", storedMessages}}},
		}}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "channel_id", Value: literal(delta.ChannelID)},
			{Key: "last_update", Value: bson.D{{Key: "$max", Value: bson.A{"$last_update", literal(delta.LastUpdate)}}}},
			{Key: "users", Value: bson.D{{Key: "$concatArrays", Value: bson.A{storedUsers, newUsers}}}},
			{Key: "messages", Value: bson.D{{Key: "$concatArrays", Value: bson.A{storedMessages, newMessages}}}},
		}}},
	}
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func ifNullArray(path string) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{path, bson.A{}}}}
}

func userIDString(id any) string {
	switch v := id.(type) {
	case bson.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
