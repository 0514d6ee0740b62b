// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

func TestParseIdentity(t *testing.T) {
	id := primitive.NewObjectID()

	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
	}{
		{name: "native ObjectID", input: id},
		{name: "pointer to ObjectID", input: &id},
		{name: "raw identity", input: RawIdentity(id)},
		{name: "encoded identity", input: EncodedIdentity(id.Hex())},
		{name: "hex string", input: id.Hex()},
		{name: "extended JSON", input: map[string]interface{}{"$oid": id.Hex()}},
		{name: "extended JSON as bson.M", input: bson.M{"$oid": id.Hex()}},
		{name: "nil", input: nil, wantErr: true},
		{name: "zero ObjectID", input: primitive.NilObjectID, wantErr: true},
		{name: "short hex", input: "abc123", wantErr: true},
		{name: "not hex", input: "zzzzzzzzzzzzzzzzzzzzzzzz", wantErr: true},
		{name: "integer", input: 42, wantErr: true},
		{name: "extended JSON with extra keys", input: bson.M{"$oid": id.Hex(), "x": 1}, wantErr: true},
		{name: "extended JSON with non-string", input: bson.M{"$oid": 7}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, base.ErrInvalidIdentity))
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestIdentityVariants(t *testing.T) {
	id := primitive.NewObjectID()

	for _, ident := range []Identity{RawIdentity(id), EncodedIdentity(id.Hex())} {
		got, err := ident.ObjectID()
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}
