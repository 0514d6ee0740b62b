// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// inUTC returns a deep copy of doc with every datetime converted to a UTC time.Time.
// Applied on the way in and on the way out so stored and returned documents agree.
func inUTC(doc bson.M) bson.M {
	if doc == nil {
		return nil
	}
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = valueInUTC(v)
	}
	return out
}

func valueInUTC(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC()
	case primitive.DateTime:
		return val.Time().UTC()
	case bson.M:
		return inUTC(val)
	case map[string]interface{}:
		return inUTC(val)
	case bson.D:
		out := make(bson.D, len(val))
		for i, e := range val {
			out[i] = bson.E{Key: e.Key, Value: valueInUTC(e.Value)}
		}
		return out
	case bson.A:
		return sliceInUTC(val)
	case []interface{}:
		return sliceInUTC(val)
	case []bson.M:
		out := make(bson.A, len(val))
		for i, m := range val {
			out[i] = inUTC(m)
		}
		return out
	}
	return v
}

func sliceInUTC(items []interface{}) bson.A {
	out := make(bson.A, len(items))
	for i, item := range items {
		out[i] = valueInUTC(item)
	}
	return out
}

func allInUTC(docs []bson.M) []bson.M {
	out := make([]bson.M, len(docs))
	for i, doc := range docs {
		out[i] = inUTC(doc)
	}
	return out
}
