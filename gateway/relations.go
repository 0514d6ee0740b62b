// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// RelationsCollection holds the links between business documents
const RelationsCollection = "Relations"

// CascadeResult reports what a remove took with it
type CascadeResult struct {
	DocumentID       primitive.ObjectID   `json:"_id"`
	RemovedRelations []primitive.ObjectID `json:"removedRelations"`
}

// RelationCleaner purges references to a removed document
type RelationCleaner interface {
	CleanRelationsOf(ctx context.Context, docs *Documents, id primitive.ObjectID) (CascadeResult, error)
}

// RelationsCollectionCleaner removes every Relations document whose from or
// to field points at the removed identity. Each relation goes through the
// archiving remove, so it lands in Relations_archived.
type RelationsCollectionCleaner struct {
	Collection string // defaults to RelationsCollection
}

// CleanRelationsOf implements RelationCleaner
func (c RelationsCollectionCleaner) CleanRelationsOf(ctx context.Context, docs *Documents, id primitive.ObjectID) (CascadeResult, error) {
	collection := c.Collection
	if collection == "" {
		collection = RelationsCollection
	}
	result := CascadeResult{DocumentID: id, RemovedRelations: []primitive.ObjectID{}}

	related, err := docs.Find(ctx, collection, FindOptions{
		Filter:     bson.M{"$or": bson.A{bson.M{"from": id}, bson.M{"to": id}}},
		Projection: bson.M{"_id": 1},
	})
	if err != nil {
		return result, err
	}

	for _, rel := range related {
		relID, err := docs.RemoveOne(ctx, collection, rel["_id"])
		if err != nil {
			return result, base.NewConnectorError(docs.Role(), "CleanRelations",
				fmt.Sprintf("removed %d of %d relations of %s", len(result.RemovedRelations), len(related), id.Hex()), err)
		}
		result.RemovedRelations = append(result.RemovedRelations, relID)
	}
	return result, nil
}
