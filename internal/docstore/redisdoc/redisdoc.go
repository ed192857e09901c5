// Package redisdoc keeps each collection in a redis hash keyed by document id.
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

const maxRetries = 16

type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ docstore.Store = (*Store)(nil)

func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(collection string) string {
	return s.prefix + ":docs:" + collection
}

func (s *Store) Find(ctx context.Context, collection string, filter query.Filter, opts ...docstore.FindOption) ([]objects.Document, error) {
	if filter.IsNone() {
		return []objects.Document{}, nil
	}

	raw, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	docs := make([]objects.Document, 0, len(raw))

	for id, data := range raw {
		doc, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
		}

		if filter.Match(doc) {
			docs = append(docs, doc)
		}
	}

	return docstore.ApplyOptions(docs, opts...), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, id objects.ID) (objects.Document, error) {
	return s.get(ctx, s.client, collection, id)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (s *Store) get(ctx context.Context, c hashGetter, collection string, id objects.ID) (objects.Document, error) {
	data, err := c.HGet(ctx, s.key(collection), id.String()).Result()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}

	return decode(data)
}

func (s *Store) Insert(ctx context.Context, collection string, doc objects.Document) (objects.Document, error) {
	id := doc.ID()
	if id.IsZero() {
		return nil, fmt.Errorf("docstore: insert into %s without id", collection)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	ok, err := s.client.HSetNX(ctx, s.key(collection), id.String(), data).Result()
	if err != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrConflict)
	}

	return decode(string(data))
}

// Update applies patch with optimistic locking on the collection hash.
func (s *Store) Update(ctx context.Context, collection string, id objects.ID, patch objects.Document) (objects.Document, error) {
	key := s.key(collection)

	var updated objects.Document

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, collection, id)
		if err != nil {
			return err
		}

		for k, v := range patch {
			if k != objects.FieldID {
				current[k] = v
			}
		}

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id.String(), data)
			return nil
		})
		if err != nil {
			return err
		}

		updated, err = decode(string(data))

		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Store) Delete(ctx context.Context, collection string, id objects.ID) error {
	n, err := s.client.HDel(ctx, s.key(collection), id.String()).Result()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	return nil
}

func (s *Store) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if filter.IsEmpty() {
		return s.client.HLen(ctx, s.key(collection)).Result()
	}

	docs, err := s.Find(ctx, collection, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(docs)), nil
}

// RunInTx buffers the writes of fn and commits them in one MULTI/EXEC. WATCH
// is only taken at commit time, so it covers the created-document check and
// not the reads fn made earlier: updates are last writer wins.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Store) error) error {
	return docstore.RunOverlayTx(ctx, s, fn, s.commit)
}

func (s *Store) commit(ctx context.Context, changes []docstore.Change) error {
	keys := lo.Uniq(lo.Map(changes, func(c docstore.Change, _ int) string {
		return s.key(c.Collection)
	}))

	payloads := make([][]byte, len(changes))

	for i, c := range changes {
		if c.Doc == nil {
			continue
		}

		data, err := json.Marshal(c.Doc)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", c.Collection, c.ID, err)
		}

		payloads[i] = data
	}

	txf := func(tx *redis.Tx) error {
		for _, c := range changes {
			if !c.Created || c.Doc == nil {
				continue
			}

			exists, err := tx.HExists(ctx, s.key(c.Collection), c.ID.String()).Result()
			if err != nil {
				return err
			}

			if exists {
				return fmt.Errorf("%s/%s: %w", c.Collection, c.ID, docstore.ErrConflict)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, c := range changes {
				if c.Doc == nil {
					pipe.HDel(ctx, s.key(c.Collection), c.ID.String())
					continue
				}

				pipe.HSet(ctx, s.key(c.Collection), c.ID.String(), payloads[i])
			}

			return nil
		})

		return err
	}

	return s.watch(ctx, txf, keys...)
}

func (s *Store) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	for attempt := range maxRetries {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		log.Debug(ctx, "redis transaction retried", log.Strings("keys", keys), log.Int("attempt", attempt+1))
	}

	return fmt.Errorf("%w: too much contention on %v", docstore.ErrTxAborted, keys)
}

// Close leaves the client open; it is owned by whoever built it.
func (s *Store) Close() error {
	return nil
}

func decode(data string) (objects.Document, error) {
	var doc objects.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	return doc, nil
}
