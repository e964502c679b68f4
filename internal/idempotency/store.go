// Package idempotency replays the first successful response of a request
// retried with the same Idempotency-Key.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

// Response is a cached HTTP response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Backend stores responses and in-flight markers.
type Backend interface {
	Lookup(ctx context.Context, scope, key string) (*Response, error)
	// Lock marks key as in flight. It reports false when another request
	// holds the key.
	Lock(ctx context.Context, scope, key string) (bool, error)
	Save(ctx context.Context, scope, key string, resp Response) error
	Unlock(ctx context.Context, scope, key string) error
}

// Store is a Redis backed Backend.
type Store struct {
	client  *redis.Client
	service string
	ttl     time.Duration
	lockTTL time.Duration
}

var _ Backend = (*Store)(nil)

// NewStore returns a Store that keeps responses for ttl.
func NewStore(client *redis.Client, service string, ttl time.Duration) *Store {
	return &Store{client: client, service: service, ttl: ttl, lockTTL: 30 * time.Second}
}

// GenerateKey namespaces key by service, operation and caller.
func (s *Store) GenerateKey(operation, scope, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.service, operation, scope, key)
}

// Lookup returns nil without error when nothing is cached.
func (s *Store) Lookup(ctx context.Context, scope, key string) (*Response, error) {
	raw, err := s.client.Get(ctx, s.GenerateKey("idem", scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get")
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return resp, nil
}

func (s *Store) Lock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.GenerateKey("idem-lock", scope, key), 1, s.lockTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

// Save caches resp and releases the in-flight marker.
func (s *Store) Save(ctx context.Context, scope, key string, resp Response) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.GenerateKey("idem", scope, key), encodeResponse(resp), s.ttl)
		p.Del(ctx, s.GenerateKey("idem-lock", scope, key))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}

func (s *Store) Unlock(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, s.GenerateKey("idem-lock", scope, key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

func encodeResponse(r Response) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Int(r.Status)
	e.FieldStart("contentType")
	e.Str(r.ContentType)
	e.FieldStart("body")
	e.Base64(r.Body)
	e.ObjEnd()
	return e.Bytes()
}

func decodeResponse(raw []byte) (*Response, error) {
	var r Response
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "status":
			r.Status, err = d.Int()
		case "contentType":
			r.ContentType, err = d.Str()
		case "body":
			r.Body, err = d.Base64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
