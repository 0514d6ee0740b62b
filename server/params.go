// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/juleno/CA-DevAvance/gateway"
)

var collectionName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,119}$`)

func validCollection(name string) bool {
	return collectionName.MatchString(name)
}

// parseFilter decodes a relaxed Extended JSON filter, so {"$oid": ...} and
// {"$date": ...} arrive as ObjectID and time values
func parseFilter(raw string) (bson.M, error) {
	if raw == "" {
		return nil, nil
	}
	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &filter); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return filter, nil
}

// parseSort reads "field:1,other:-1" into an ordered sort document
func parseSort(raw string) (bson.D, error) {
	if raw == "" {
		return nil, nil
	}
	var keys bson.D
	for _, part := range strings.Split(raw, ",") {
		field, dir, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || field == "" {
			return nil, fmt.Errorf("sort: %q is not field:direction", part)
		}
		switch dir {
		case "1":
			keys = append(keys, bson.E{Key: field, Value: 1})
		case "-1":
			keys = append(keys, bson.E{Key: field, Value: -1})
		default:
			return nil, fmt.Errorf("sort: direction of %q must be 1 or -1", field)
		}
	}
	return keys, nil
}

// parseFields reads "a,b.c" into an inclusion projection
func parseFields(raw string) bson.M {
	if raw == "" {
		return nil
	}
	projection := bson.M{}
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			projection[f] = 1
		}
	}
	if len(projection) == 0 {
		return nil
	}
	return projection
}

func parseCount(q url.Values, name string) (int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// findOptions reads filter, fields, skip, limit and sort from the query string
func findOptions(q url.Values) (gateway.FindOptions, error) {
	var opts gateway.FindOptions
	var err error

	if opts.Filter, err = parseFilter(q.Get("filter")); err != nil {
		return opts, err
	}
	if opts.Sort, err = parseSort(q.Get("sort")); err != nil {
		return opts, err
	}
	if opts.Skip, err = parseCount(q, "skip"); err != nil {
		return opts, err
	}
	if opts.Limit, err = parseCount(q, "limit"); err != nil {
		return opts, err
	}
	opts.Projection = parseFields(q.Get("fields"))
	return opts, nil
}
