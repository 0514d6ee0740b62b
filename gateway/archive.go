// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ArchiveSuffix names the sibling collection holding prior versions
const ArchiveSuffix = "_archived"

// Archive actions
const (
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// ArchiveCollection returns the archive collection of collection
func ArchiveCollection(collection string) string {
	return collection + ArchiveSuffix
}

// ArchiveRecord is the pre-mutation snapshot written before a replace or remove.
// Document holds the stored version(s) matching the identity: one element, or
// none when nothing was stored yet.
type ArchiveRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Action     string             `bson:"action"`
	Author     primitive.ObjectID `bson:"author"`
	Date       time.Time          `bson:"date"`
	DocumentID primitive.ObjectID `bson:"documentId,omitempty"`
	Document   []bson.M           `bson:"document"`
}

func (r ArchiveRecord) toBSON() bson.M {
	snapshot := make(bson.A, len(r.Document))
	for i, doc := range r.Document {
		snapshot[i] = doc
	}
	return bson.M{
		"action":     r.Action,
		"author":     r.Author,
		"date":       r.Date.UTC(),
		"documentId": r.DocumentID,
		"document":   snapshot,
	}
}

// decodeArchiveRecord reads a stored archive record. Records written before
// documentId existed fall back to the snapshot's _id.
func decodeArchiveRecord(raw bson.M) (ArchiveRecord, error) {
	var rec ArchiveRecord
	data, err := bson.Marshal(raw)
	if err != nil {
		return rec, err
	}
	if err := bson.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	for i, doc := range rec.Document {
		rec.Document[i] = inUTC(doc)
	}
	if rec.DocumentID.IsZero() && len(rec.Document) > 0 {
		if id, err := ParseIdentity(rec.Document[0]["_id"]); err == nil {
			rec.DocumentID = id
		}
	}
	return rec, nil
}
