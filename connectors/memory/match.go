// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package memory

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matches reports whether doc satisfies a query filter.
// Supported: field equality on dotted paths (traversing arrays), $and, $or,
// $eq, $ne, $in, $exists.
func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or":
			clauses, err := toClauses(key, cond)
			if err != nil {
				return false, err
			}
			ok, err := matchLogical(doc, key, clauses)
			if err != nil || !ok {
				return false, err
			}
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported operator %s", key)
			}
			ok, err := matchField(doc, key, cond)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func matchLogical(doc bson.M, op string, clauses []bson.M) (bool, error) {
	for _, clause := range clauses {
		ok, err := matches(doc, clause)
		if err != nil {
			return false, err
		}
		if op == "$or" && ok {
			return true, nil
		}
		if op == "$and" && !ok {
			return false, nil
		}
	}
	return op == "$and", nil
}

func toClauses(op string, v interface{}) ([]bson.M, error) {
	var items []interface{}
	switch val := v.(type) {
	case []bson.M:
		out := make([]bson.M, len(val))
		copy(out, val)
		return out, nil
	case bson.A:
		items = val
	case []interface{}:
		items = val
	default:
		return nil, fmt.Errorf("%s requires an array, got %T", op, v)
	}
	out := make([]bson.M, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%s clause must be a document, got %T", op, item)
		}
		out = append(out, m)
	}
	return out, nil
}

func matchField(doc bson.M, path string, cond interface{}) (bool, error) {
	values, found := lookup(doc, strings.Split(path, "."))

	ops, isOps := operatorDoc(cond)
	if !isOps {
		return containsEqual(values, cond), nil
	}

	for op, arg := range ops {
		switch op {
		case "$eq":
			if !containsEqual(values, arg) {
				return false, nil
			}
		case "$ne":
			if containsEqual(values, arg) {
				return false, nil
			}
		case "$in":
			candidates, ok := asSlice(arg)
			if !ok {
				return false, fmt.Errorf("$in requires an array, got %T", arg)
			}
			hit := false
			for _, c := range candidates {
				if containsEqual(values, c) {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
		case "$exists":
			want, _ := arg.(bool)
			if found != want {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
	}
	return true, nil
}

// operatorDoc reports whether cond is a document made only of $-operators
func operatorDoc(cond interface{}) (bson.M, bool) {
	m, ok := asMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// lookup resolves a dotted path. Arrays met on the way are fanned out, so
// "users.identifiers.login" yields every login of every identifier of every user.
func lookup(v interface{}, path []string) ([]interface{}, bool) {
	if len(path) == 0 {
		return []interface{}{v}, true
	}
	if m, ok := asMap(v); ok {
		next, exists := m[path[0]]
		if !exists {
			return nil, false
		}
		return lookup(next, path[1:])
	}
	if items, ok := asSlice(v); ok {
		var out []interface{}
		found := false
		for _, item := range items {
			vals, ok := lookup(item, path)
			if ok {
				found = true
				out = append(out, vals...)
			}
		}
		return out, found
	}
	return nil, false
}

// containsEqual implements MongoDB equality: a scalar matches an array holding it.
func containsEqual(values []interface{}, want interface{}) bool {
	for _, v := range values {
		if valuesEqual(v, want) {
			return true
		}
		if items, ok := asSlice(v); ok {
			for _, item := range items {
				if valuesEqual(item, want) {
					return true
				}
			}
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	if oa, ok := a.(primitive.ObjectID); ok {
		ob, ok := b.(primitive.ObjectID)
		return ok && oa == ob
	}
	if ma, ok := asMap(a); ok {
		mb, ok := asMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, exists := mb[k]
			if !exists || !valuesEqual(va, vb) {
				return false
			}
		}
		return true
	}
	if sa, ok := asSlice(a); ok {
		sb, ok := asSlice(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !valuesEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values for sorting; values of different kinds order by kind.
func compareValues(a, b interface{}) int {
	ka, kb := kindRank(a), kindRank(b)
	if ka != kb {
		return ka - kb
	}
	switch ka {
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmpOrdered(fa, fb)
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return strings.Compare(oa.Hex(), ob.Hex())
	case 4:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 5:
		ta, _ := toTime(a)
		tb, _ := toTime(b)
		return ta.Compare(tb)
	}
	return 0
}

func kindRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case primitive.ObjectID:
		return 3
	case bool:
		return 4
	}
	if _, ok := toTime(v); ok {
		return 5
	}
	return 6
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func asMap(v interface{}) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return bson.M(m), true
	case bson.D:
		return dToM(m), true
	}
	return nil, false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case bson.A:
		return []interface{}(s), true
	case []interface{}:
		return s, true
	case []bson.M:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []primitive.ObjectID:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []string:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

func dToM(d bson.D) bson.M {
	m := make(bson.M, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}
