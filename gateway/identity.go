// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// Identity is a document identity as it reaches the gateway: either the
// store's native ObjectID or its 24-character hex encoding.
type Identity interface {
	ObjectID() (primitive.ObjectID, error)
}

// RawIdentity is a native store identity
type RawIdentity primitive.ObjectID

// ObjectID returns the identity unchanged
func (r RawIdentity) ObjectID() (primitive.ObjectID, error) {
	id := primitive.ObjectID(r)
	if id.IsZero() {
		return primitive.NilObjectID, invalidIdentity(r)
	}
	return id, nil
}

// EncodedIdentity is the hex form used in URLs and JSON payloads
type EncodedIdentity string

// ObjectID decodes the hex form
func (e EncodedIdentity) ObjectID() (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(string(e))
	if err != nil {
		return primitive.NilObjectID, base.NewConnectorError("gateway", "ParseIdentity",
			fmt.Sprintf("%q is not a 24-character hex identity", string(e)), base.ErrInvalidIdentity)
	}
	return id, nil
}

// ParseIdentity converts anything a caller may hand in as an _id to an ObjectID.
// Accepted: primitive.ObjectID, RawIdentity, EncodedIdentity, a hex string, and
// the extended JSON form {"$oid": "<hex>"}.
func ParseIdentity(v interface{}) (primitive.ObjectID, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return RawIdentity(id).ObjectID()
	case *primitive.ObjectID:
		if id == nil {
			return primitive.NilObjectID, invalidIdentity(v)
		}
		return RawIdentity(*id).ObjectID()
	case Identity:
		return id.ObjectID()
	case string:
		return EncodedIdentity(id).ObjectID()
	case bson.M:
		return parseExtendedJSON(id)
	case map[string]interface{}:
		return parseExtendedJSON(id)
	}
	return primitive.NilObjectID, invalidIdentity(v)
}

func parseExtendedJSON(m map[string]interface{}) (primitive.ObjectID, error) {
	if len(m) != 1 {
		return primitive.NilObjectID, invalidIdentity(m)
	}
	hex, ok := m["$oid"].(string)
	if !ok {
		return primitive.NilObjectID, invalidIdentity(m)
	}
	return EncodedIdentity(hex).ObjectID()
}

func invalidIdentity(v interface{}) error {
	return base.NewConnectorError("gateway", "ParseIdentity",
		fmt.Sprintf("cannot use %T as a document identity", v), base.ErrInvalidIdentity)
}
