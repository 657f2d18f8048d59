package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/fanout"
)

// Defaults for [MongoOptions].
const (
	DefaultMongoDatabase   = "graphsync"
	DefaultMongoCollection = "events"
)

// MongoOptions configures a [MongoJournal].
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// JournalEntry is one document in the event journal.
type JournalEntry struct {
	Type       string       `bson:"type"`
	Event      fanout.Event `bson:"event"`
	ReceivedAt time.Time    `bson:"received_at"`
}

// MongoJournal appends every event to a MongoDB collection. The journal is
// an audit trail; the server never reads it back.
type MongoJournal struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoJournal connects to MongoDB and verifies the connection.
func NewMongoJournal(ctx context.Context, opts MongoOptions) (*MongoJournal, error) {
	if opts.URI == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "mongo uri cannot be empty")
	}
	if opts.Database == "" {
		opts.Database = DefaultMongoDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultMongoCollection
	}
	for _, name := range []string{opts.Database, opts.Collection} {
		if err := errors.ValidateChannelName(name); err != nil {
			return nil, err
		}
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "ping mongo")
	}
	return &MongoJournal{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		now:        time.Now,
	}, nil
}

// Publish decodes msg and inserts it as a [JournalEntry].
func (j *MongoJournal) Publish(ctx context.Context, msg []byte) error {
	entry, err := newJournalEntry(msg, j.now())
	if err != nil {
		return err
	}
	if _, err := j.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (j *MongoJournal) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return j.client.Disconnect(ctx)
}

func newJournalEntry(msg []byte, at time.Time) (JournalEntry, error) {
	var ev fanout.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return JournalEntry{}, fmt.Errorf("decode event: %w", err)
	}
	return JournalEntry{Type: ev.Type, Event: ev, ReceivedAt: at.UTC()}, nil
}
