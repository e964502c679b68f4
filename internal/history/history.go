// Package history stores the order status audit trail in MongoDB.
package history

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/emart-orders/internal/domain/auth"
	"github.com/xenking/emart-orders/internal/domain/order"
)

// Collection is the name of the status history collection.
const Collection = "order_status_history"

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping")
	}
	return client, nil
}

type document struct {
	OrderID   string    `bson:"orderId"`
	Source    string    `bson:"source"`
	From      string    `bson:"from,omitempty"`
	To        string    `bson:"to"`
	ActorID   string    `bson:"actorId"`
	ActorRole string    `bson:"actorRole"`
	At        time.Time `bson:"at"`
}

var _ order.StatusLog = (*Log)(nil)

// Log implements order.StatusLog on a MongoDB collection.
type Log struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// New returns a Log writing to the status history collection of db.
func New(db *mongo.Database) *Log {
	return &Log{coll: db.Collection(Collection), timeout: 5 * time.Second}
}

// EnsureIndexes creates the (orderId, at) index used by List.
func (l *Log) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return errors.Wrap(err, "create index")
	}
	return nil
}

// Record appends one entry.
func (l *Log) Record(ctx context.Context, c order.StatusChange) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err := l.coll.InsertOne(ctx, document{
		OrderID:   c.OrderID,
		Source:    c.Source,
		From:      c.From,
		To:        c.To,
		ActorID:   c.ActorID,
		ActorRole: string(c.ActorRole),
		At:        c.At.UTC(),
	})
	if err != nil {
		return errors.Wrapf(err, "insert history of %s", c.OrderID)
	}
	return nil
}

// List returns the entries of orderID, oldest first.
func (l *Log) List(ctx context.Context, orderID string) ([]order.StatusChange, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cur, err := l.coll.Find(ctx,
		bson.D{{Key: "orderId", Value: orderID}},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "find history of %s", orderID)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}

	out := make([]order.StatusChange, len(docs))
	for i, d := range docs {
		out[i] = order.StatusChange{
			OrderID:   d.OrderID,
			Source:    d.Source,
			From:      d.From,
			To:        d.To,
			ActorID:   d.ActorID,
			ActorRole: auth.Role(d.ActorRole),
			At:        d.At,
		}
	}
	return out, nil
}
