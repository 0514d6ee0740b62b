// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// FindOptions selects and shapes the documents returned by Find
type FindOptions struct {
	Filter     bson.M
	Projection bson.M
	Skip       int64
	Limit      int64 // 0 means unbounded
	Sort       bson.D
}

// InsertResult is the identity assigned by an insert
type InsertResult struct {
	ID primitive.ObjectID `json:"_id" bson:"_id"`
}

// SaveResult reports which path a save took
type SaveResult struct {
	ID       primitive.ObjectID `json:"_id"`
	Inserted bool               `json:"inserted"`
	Document bson.M             `json:"document,omitempty"` // post-replace document, nil on insert
}

// Documents is the operation set over one connector role. The directory role
// writes documents as given; the business role stamps common metadata on every
// mutation and archives the prior version first.
type Documents struct {
	store base.Store
	rc    *RequestContext
	role  string
}

// Role returns RoleDirectory or RoleBusiness
func (d *Documents) Role() string {
	return d.role
}

// Database returns the name of the underlying database
func (d *Documents) Database() string {
	return d.store.Name()
}

// HealthCheck pings the underlying database
func (d *Documents) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	status, err := d.store.HealthCheck(ctx)
	if err != nil {
		return status, d.wrap("HealthCheck", "health check failed", err)
	}
	return status, nil
}

func (d *Documents) versioned() bool {
	return d.role == RoleBusiness
}

// Find returns the matching documents, fully read, with datetimes in UTC
func (d *Documents) Find(ctx context.Context, collection string, opts FindOptions) (docs []bson.M, err error) {
	defer observe(d.role, "find", time.Now(), &err)

	raw, err := d.store.Find(ctx, collection, inUTC(opts.Filter), base.FindOptions{
		Projection: opts.Projection,
		Skip:       opts.Skip,
		Limit:      opts.Limit,
		Sort:       opts.Sort,
	})
	if err != nil {
		return nil, d.wrap("Find", fmt.Sprintf("find in %s failed", collection), err)
	}
	return allInUTC(raw), nil
}

// Count returns the estimated size of collection. The filter is not applied:
// the estimate comes from collection metadata and is always the total.
func (d *Documents) Count(ctx context.Context, collection string, filter bson.M) (n int64, err error) {
	defer observe(d.role, "count", time.Now(), &err)

	n, err = d.store.EstimatedCount(ctx, collection)
	if err != nil {
		return 0, d.wrap("Count", fmt.Sprintf("count of %s failed", collection), err)
	}
	return n, nil
}

// Save replaces doc when it carries a non-null _id and inserts it otherwise
func (d *Documents) Save(ctx context.Context, collection string, doc bson.M) (SaveResult, error) {
	if rawID, ok := doc["_id"]; ok && rawID != nil {
		id, err := ParseIdentity(rawID)
		if err != nil {
			return SaveResult{}, err
		}
		next := shallowCopy(doc)
		next["_id"] = id
		replaced, err := d.Replace(ctx, collection, next, bson.M{"_id": id})
		if err != nil {
			return SaveResult{}, err
		}
		return SaveResult{ID: id, Document: replaced}, nil
	}

	next := shallowCopy(doc)
	delete(next, "_id")
	res, err := d.Insert(ctx, collection, next)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ID: res.ID, Inserted: true}, nil
}

// Insert stores a new document. On the business role common.creation is set
// when absent and common.update always; both carry the current user.
func (d *Documents) Insert(ctx context.Context, collection string, doc bson.M) (res InsertResult, err error) {
	defer observe(d.role, "insert", time.Now(), &err)

	next := inUTC(doc)
	if next == nil {
		next = bson.M{}
	}
	if rawID, ok := next["_id"]; ok {
		id, err := ParseIdentity(rawID)
		if err != nil {
			return InsertResult{}, err
		}
		next["_id"] = id
	}

	if d.versioned() {
		author, err := d.author("Insert")
		if err != nil {
			return InsertResult{}, err
		}
		stamp := d.stamp(author)
		common := commonOf(next)
		if _, exists := common["creation"]; !exists {
			common["creation"] = stamp
		}
		common["update"] = stamp
		next["common"] = common
	}

	inserted, err := d.store.InsertOne(ctx, collection, next)
	if err != nil {
		return InsertResult{}, d.wrap("Insert", fmt.Sprintf("insert into %s failed", collection), err)
	}
	id, err := ParseIdentity(inserted)
	if err != nil {
		return InsertResult{}, d.wrap("Insert", "store returned a non-ObjectID identity", err)
	}

	d.rc.log.Info("Document inserted", map[string]interface{}{
		"role":       d.role,
		"collection": collection,
		"_id":        id.Hex(),
	})
	return InsertResult{ID: id}, nil
}

// Replace swaps the document matching filter for newDoc and returns the stored
// result. On the business role the versions currently stored under newDoc's
// _id are archived first, then common.update is refreshed and the replace runs.
// A replace that fails after the archive write leaves an orphan archive record;
// it is logged and left for ReconcileOrphanArchives.
func (d *Documents) Replace(ctx context.Context, collection string, newDoc bson.M, filter bson.M) (out bson.M, err error) {
	defer observe(d.role, "replace", time.Now(), &err)

	next := inUTC(newDoc)
	if next == nil {
		next = bson.M{}
	}
	var archiveID interface{}

	if d.versioned() {
		author, err := d.author("Replace")
		if err != nil {
			return nil, err
		}
		id, err := ParseIdentity(next["_id"])
		if err != nil {
			return nil, err
		}
		next["_id"] = id

		var current []bson.M
		archiveID, current, err = d.archive(ctx, collection, ActionUpdate, author, id)
		if err != nil {
			return nil, err
		}

		common := commonOf(next)
		if _, ok := common["creation"]; !ok && len(current) > 0 {
			if creation, ok := commonOf(current[0])["creation"]; ok {
				common["creation"] = creation
			}
		}
		common["update"] = d.stamp(author)
		next["common"] = common
	}

	replaced, err := d.store.FindOneAndReplace(ctx, collection, inUTC(filter), next)
	if err != nil {
		if archiveID != nil {
			d.orphanRisk(ActionUpdate, collection, archiveID, err)
		}
		return nil, d.wrap("Replace", fmt.Sprintf("replace in %s failed", collection), err)
	}

	d.rc.log.Info("Document updated", map[string]interface{}{
		"role":       d.role,
		"collection": collection,
		"_id":        fmt.Sprint(replaced["_id"]),
	})
	return inUTC(replaced), nil
}

// Remove archives and deletes the document with the given identity, then
// hands the identity to the relation cleaner and returns its report.
// The directory role does not support removal.
func (d *Documents) Remove(ctx context.Context, collection string, documentID interface{}) (res CascadeResult, err error) {
	if !d.versioned() {
		return CascadeResult{}, d.wrap("Remove", "the global directory does not support document removal",
			base.ErrUnsupportedOperation)
	}

	id, err := d.RemoveOne(ctx, collection, documentID)
	if err != nil {
		return CascadeResult{}, err
	}

	cleaner := d.rc.router.cleaner
	if cleaner == nil {
		return CascadeResult{DocumentID: id}, nil
	}
	return cleaner.CleanRelationsOf(ctx, d, id)
}

// RemoveOne archives and deletes one document without relation cleanup.
// Relation cleaners use it so that removing a relation does not cascade.
func (d *Documents) RemoveOne(ctx context.Context, collection string, documentID interface{}) (id primitive.ObjectID, err error) {
	defer observe(d.role, "remove", time.Now(), &err)

	if !d.versioned() {
		return primitive.NilObjectID, d.wrap("Remove", "the global directory does not support document removal",
			base.ErrUnsupportedOperation)
	}
	author, err := d.author("Remove")
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, err = ParseIdentity(documentID)
	if err != nil {
		return primitive.NilObjectID, err
	}

	archiveID, _, err := d.archive(ctx, collection, ActionRemove, author, id)
	if err != nil {
		return primitive.NilObjectID, err
	}

	deleted, err := d.store.DeleteOne(ctx, collection, bson.M{"_id": id})
	if err != nil {
		d.orphanRisk(ActionRemove, collection, archiveID, err)
		return primitive.NilObjectID, d.wrap("Remove", fmt.Sprintf("delete from %s failed", collection), err)
	}

	d.rc.log.Info("Document archived and removed", map[string]interface{}{
		"collection": collection,
		"_id":        id.Hex(),
		"deleted":    deleted,
	})
	return id, nil
}

// archive writes the archive record for the versions stored under id and
// returns the record's identity along with the versions it archived
func (d *Documents) archive(ctx context.Context, collection, action string, author, id primitive.ObjectID) (interface{}, []bson.M, error) {
	current, err := d.store.Find(ctx, collection, bson.M{"_id": id}, base.FindOptions{})
	if err != nil {
		return nil, nil, d.wrap("Archive", fmt.Sprintf("cannot read current version from %s", collection), err)
	}

	rec := ArchiveRecord{
		Action:     action,
		Author:     author,
		Date:       d.rc.router.now().UTC(),
		DocumentID: id,
		Document:   allInUTC(current),
	}
	archiveID, err := d.store.InsertOne(ctx, ArchiveCollection(collection), rec.toBSON())
	if err != nil {
		return nil, nil, d.wrap("Archive", fmt.Sprintf("cannot write %s", ArchiveCollection(collection)), err)
	}
	archiveRecordsTotal.WithLabelValues(action).Inc()

	d.rc.log.Debug("Document archived", map[string]interface{}{
		"collection": ArchiveCollection(collection),
		"action":     action,
		"_id":        id.Hex(),
		"versions":   len(current),
	})
	return archiveID, current, nil
}

func (d *Documents) orphanRisk(action, collection string, archiveID interface{}, cause error) {
	orphanArchiveRiskTotal.WithLabelValues(action).Inc()
	d.rc.log.Warn("Archive record written but mutation failed", map[string]interface{}{
		"collection": ArchiveCollection(collection),
		"archive_id": fmt.Sprint(archiveID),
		"action":     action,
		"error":      cause.Error(),
	})
}

func (d *Documents) author(operation string) (primitive.ObjectID, error) {
	p, ok := d.rc.Principal()
	if !ok || p.UserID.IsZero() {
		return primitive.NilObjectID, d.wrap(operation, "mutation requires an authenticated user",
			base.ErrAuthContextMissing)
	}
	return p.UserID, nil
}

func (d *Documents) stamp(author primitive.ObjectID) bson.M {
	return bson.M{"date": d.rc.router.now().UTC(), "author": author}
}

func (d *Documents) wrap(operation, message string, err error) error {
	return base.NewConnectorError(d.role, operation, message, err)
}

// commonOf returns a fresh copy of doc's common sub-document
func commonOf(doc bson.M) bson.M {
	common := bson.M{}
	switch existing := doc["common"].(type) {
	case bson.M:
		for k, v := range existing {
			common[k] = v
		}
	case map[string]interface{}:
		for k, v := range existing {
			common[k] = v
		}
	case bson.D:
		for _, e := range existing {
			common[e.Key] = e.Value
		}
	}
	return common
}

func shallowCopy(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
