// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// Engine is an in-process document server holding any number of databases.
// Stores dialed from the same Engine share data, the way clients of one
// MongoDB server do. Safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	databases   map[string]map[string][]bson.M // db -> collection -> documents in insertion order
	unreachable map[string]bool                // hosts that fail to dial
	dials       int
	logger      *log.Logger
}

// NewEngine creates an empty engine
func NewEngine() *Engine {
	return &Engine{
		databases:   make(map[string]map[string][]bson.M),
		unreachable: make(map[string]bool),
		logger:      log.New(os.Stdout, "[MEMORY_STORE] ", log.LstdFlags),
	}
}

// SetUnreachable makes every descriptor naming host fail to dial with base.ErrConnectionTimeout
func (e *Engine) SetUnreachable(host string, unreachable bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unreachable[host] = unreachable
}

// Dials returns how many stores have been opened
func (e *Engine) Dials() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dials
}

// Dial opens a store on the descriptor's database. It has the base.Dialer signature.
func (e *Engine) Dial(ctx context.Context, d base.Descriptor) (base.Store, error) {
	if _, err := base.BuildConnectionString(d); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unreachable[d.Host] {
		return nil, base.NewConnectorError(d.DBName, "Connect",
			fmt.Sprintf("%s unreachable", d.Redacted()), base.ErrConnectionTimeout)
	}
	e.dials++
	if _, exists := e.databases[d.DBName]; !exists {
		e.databases[d.DBName] = make(map[string][]bson.M)
	}
	return &Store{engine: e, dbName: d.DBName}, nil
}

// Store is a base.Store bound to one database of an Engine
type Store struct {
	engine *Engine
	dbName string
	closed bool
}

// Close marks the handle closed
func (s *Store) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// HealthCheck always reports healthy for an open handle
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	status := &base.HealthStatus{
		Healthy:   !s.closed,
		Details:   map[string]string{"database": s.dbName},
		Timestamp: time.Now(),
	}
	if s.closed {
		status.Error = "handle closed"
	}
	return status, nil
}

// Find returns copies of the matching documents
func (s *Store) Find(ctx context.Context, collection string, filter bson.M, opts base.FindOptions) ([]bson.M, error) {
	if err := s.check("Find"); err != nil {
		return nil, err
	}

	s.engine.mu.RLock()
	defer s.engine.mu.RUnlock()

	var hits []bson.M
	for _, doc := range s.collection(collection) {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, base.NewConnectorError(s.dbName, "Find", "invalid filter", err)
		}
		if ok {
			hits = append(hits, doc)
		}
	}

	if len(opts.Sort) > 0 {
		sortDocuments(hits, opts.Sort)
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(hits)) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	results := make([]bson.M, 0, len(hits))
	for _, doc := range hits {
		results = append(results, project(cloneDocument(doc), opts.Projection))
	}
	return results, nil
}

// EstimatedCount returns the collection size
func (s *Store) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	if err := s.check("EstimatedCount"); err != nil {
		return 0, err
	}

	s.engine.mu.RLock()
	defer s.engine.mu.RUnlock()
	return int64(len(s.collection(collection))), nil
}

// InsertOne stores a copy of doc, assigning an ObjectID when _id is missing
func (s *Store) InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error) {
	if err := s.check("InsertOne"); err != nil {
		return nil, err
	}

	stored := cloneDocument(doc)
	if id, exists := stored["_id"]; !exists || id == nil {
		stored["_id"] = primitive.NewObjectID()
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	docs := s.collection(collection)
	for _, existing := range docs {
		if valuesEqual(existing["_id"], stored["_id"]) {
			return nil, base.NewConnectorError(s.dbName, "InsertOne",
				fmt.Sprintf("duplicate key _id %v in %s", stored["_id"], collection), nil)
		}
	}
	s.engine.databases[s.dbName][collection] = append(docs, stored)
	return stored["_id"], nil
}

// FindOneAndReplace replaces the first matching document and returns the new version
func (s *Store) FindOneAndReplace(ctx context.Context, collection string, filter bson.M, replacement bson.M) (bson.M, error) {
	if err := s.check("FindOneAndReplace"); err != nil {
		return nil, err
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	docs := s.collection(collection)
	idx, err := firstMatch(docs, filter)
	if err != nil {
		return nil, base.NewConnectorError(s.dbName, "FindOneAndReplace", "invalid filter", err)
	}
	if idx < 0 {
		return nil, base.NewConnectorError(s.dbName, "FindOneAndReplace",
			fmt.Sprintf("no document in %s matches filter", collection), base.ErrDocumentNotFound)
	}

	next := cloneDocument(replacement)
	currentID := docs[idx]["_id"]
	if id, exists := next["_id"]; exists && id != nil && !valuesEqual(id, currentID) {
		return nil, base.NewConnectorError(s.dbName, "FindOneAndReplace",
			"replacement would modify the immutable field _id", nil)
	}
	next["_id"] = currentID
	docs[idx] = next

	return cloneDocument(next), nil
}

// DeleteOne removes the first matching document
func (s *Store) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if err := s.check("DeleteOne"); err != nil {
		return 0, err
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	docs := s.collection(collection)
	idx, err := firstMatch(docs, filter)
	if err != nil {
		return 0, base.NewConnectorError(s.dbName, "DeleteOne", "invalid filter", err)
	}
	if idx < 0 {
		return 0, nil
	}
	s.engine.databases[s.dbName][collection] = append(docs[:idx:idx], docs[idx+1:]...)
	return 1, nil
}

// Name returns the database name
func (s *Store) Name() string {
	return s.dbName
}

// Type returns the engine type
func (s *Store) Type() string {
	return "memory"
}

func (s *Store) check(operation string) error {
	if s.closed {
		return base.NewConnectorError(s.dbName, operation, "handle closed", nil)
	}
	return nil
}

// collection must be called with the engine lock held
func (s *Store) collection(name string) []bson.M {
	return s.engine.databases[s.dbName][name]
}

func firstMatch(docs []bson.M, filter bson.M) (int, error) {
	for i, doc := range docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func sortDocuments(docs []bson.M, keys bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			a := firstValue(docs[i], key.Key)
			b := firstValue(docs[j], key.Key)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if direction(key.Value) < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func firstValue(doc bson.M, path string) interface{} {
	values, ok := lookup(doc, strings.Split(path, "."))
	if !ok || len(values) == 0 {
		return nil
	}
	return values[0]
}

func direction(v interface{}) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return 1
}

// project applies a top-level inclusion or exclusion projection
func project(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}

	inclusive := false
	for field, v := range projection {
		if field != "_id" && truthy(v) {
			inclusive = true
			break
		}
	}

	if !inclusive {
		for field, v := range projection {
			if !truthy(v) {
				delete(doc, field)
			}
		}
		return doc
	}

	out := bson.M{}
	if v, listed := projection["_id"]; !listed || truthy(v) {
		if id, exists := doc["_id"]; exists {
			out["_id"] = id
		}
	}
	for field, v := range projection {
		if field == "_id" || !truthy(v) {
			continue
		}
		if val, exists := doc[field]; exists {
			out[field] = val
		}
	}
	return out
}

func truthy(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// cloneDocument deep-copies a document into the shapes the MongoDB driver decodes:
// sub-documents as bson.M, arrays as bson.A, datetimes as primitive.DateTime.
func cloneDocument(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return primitive.NewDateTimeFromTime(t)
	}
	if m, ok := asMap(v); ok {
		return cloneDocument(m)
	}
	if items, ok := asSlice(v); ok {
		out := make(bson.A, len(items))
		for i, item := range items {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
