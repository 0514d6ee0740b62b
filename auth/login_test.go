// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/connectors/memory"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

const testSalt = "pepper"

var directory = base.Descriptor{Host: "directory.local", Port: 27017, DBName: "directory"}

type fixture struct {
	engine    *memory.Engine
	router    *gateway.Router
	licenseID primitive.ObjectID
	userID    primitive.ObjectID
}

func databaseDoc(name string) bson.M {
	return bson.M{"host": "tenants.local", "port": 27017, "login": "svc", "password": "pw", "dbName": name}
}

func insertLicense(t *testing.T, engine *memory.Engine, license bson.M) primitive.ObjectID {
	t.Helper()
	store, err := engine.Dial(context.Background(), directory)
	require.NoError(t, err)
	id, err := store.InsertOne(context.Background(), LicensesCollection, license)
	require.NoError(t, err)
	return id.(primitive.ObjectID)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{engine: memory.NewEngine(), userID: primitive.NewObjectID()}

	f.licenseID = insertLicense(t, f.engine, bson.M{
		"name":        "Acme",
		"identifiers": bson.M{"password": HashPassword("correct horse", testSalt)},
		"users": bson.A{
			bson.M{
				"_id":       f.userID,
				"firstName": "Jane",
				"identifiers": bson.A{
					bson.M{"type": "google", "login": "jane@acme.test"},
					bson.M{"type": IdentifierType, "login": "jdoe"},
				},
			},
			bson.M{
				"_id":         primitive.NewObjectID(),
				"firstName":   "Al",
				"identifiers": bson.A{bson.M{"type": IdentifierType, "login": "asmith"}},
			},
		},
		"databases": bson.A{databaseDoc("tenant_acme"), databaseDoc("tenant_acme_archive")},
	})

	r, err := gateway.NewRouter(gateway.RouterOptions{
		Directory: directory,
		Dialer:    f.engine.Dial,
		Logger:    logger.NewWithWriter("gateway", io.Discard),
	})
	require.NoError(t, err)
	f.router = r
	return f
}

func quietAuthenticator(cache DescriptorCache) *Authenticator {
	return NewAuthenticator(AuthenticatorOptions{
		HashSalt: testSalt,
		Cache:    cache,
		Logger:   logger.NewWithWriter("auth", io.Discard),
	})
}

func TestHashPassword(t *testing.T) {
	digest := HashPassword("secret", "salt")
	assert.Len(t, digest, 128)
	assert.Equal(t, digest, HashPassword("secret", "salt"))
	assert.NotEqual(t, digest, HashPassword("secret", "other"))
	// sha512("") is a well-known constant
	assert.Equal(t,
		"cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
		HashPassword("", ""))
}

func TestLoginBindsFirstDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := f.router.NewContext("req-1")
	defer rc.Close(ctx)

	res, err := quietAuthenticator(nil).Login(ctx, rc, "jdoe", "correct horse")
	require.NoError(t, err)

	assert.Equal(t, f.licenseID, res.LicenseID)
	assert.Equal(t, f.userID, res.UserID)
	assert.Equal(t, "tenant_acme", res.Database.DBName)
	assert.Equal(t, 27017, res.Database.Port)
	assert.Equal(t, "Jane", res.Profile["firstName"])
	assert.NotContains(t, res.Profile, "identifiers")

	assert.True(t, rc.Bound())
	assert.Equal(t, "tenant_acme", rc.Tenant())
	p, ok := rc.Principal()
	require.True(t, ok)
	assert.Equal(t, f.userID, p.UserID)
	assert.Equal(t, f.licenseID, p.LicenseID)

	// the bound business connector accepts stamped writes right away
	docs, err := rc.Business()
	require.NoError(t, err)
	_, err = docs.Insert(ctx, "Contacts", bson.M{"name": "first"})
	require.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		login    string
		password string
		license  bson.M
	}{
		{name: "wrong password", login: "jdoe", password: "wrong"},
		{name: "unknown login", login: "nobody", password: "correct horse"},
		{name: "login only under another identifier type", login: "jane@acme.test", password: "correct horse"},
		{
			name: "two users share the login", login: "twin", password: "twin-pass",
			license: bson.M{
				"identifiers": bson.M{"password": HashPassword("twin-pass", testSalt)},
				"users": bson.A{
					bson.M{"_id": primitive.NewObjectID(), "identifiers": bson.A{bson.M{"type": IdentifierType, "login": "twin"}}},
					bson.M{"_id": primitive.NewObjectID(), "identifiers": bson.A{bson.M{"type": IdentifierType, "login": "twin"}}},
				},
				"databases": bson.A{databaseDoc("tenant_twins")},
			},
		},
		{
			name: "license without databases", login: "lonely", password: "lonely-pass",
			license: bson.M{
				"identifiers": bson.M{"password": HashPassword("lonely-pass", testSalt)},
				"users":       bson.A{bson.M{"_id": primitive.NewObjectID(), "identifiers": bson.A{bson.M{"type": IdentifierType, "login": "lonely"}}}},
				"databases":   bson.A{},
			},
		},
		{
			name: "user without identity", login: "ghost", password: "ghost-pass",
			license: bson.M{
				"identifiers": bson.M{"password": HashPassword("ghost-pass", testSalt)},
				"users":       bson.A{bson.M{"identifiers": bson.A{bson.M{"type": IdentifierType, "login": "ghost"}}}},
				"databases":   bson.A{databaseDoc("tenant_ghost")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.license != nil {
				insertLicense(t, f.engine, tt.license)
			}
			ctx := context.Background()
			rc := f.router.NewContext("req-1")
			defer rc.Close(ctx)
			dialsBefore := f.engine.Dials()

			res, err := quietAuthenticator(nil).Login(ctx, rc, tt.login, tt.password)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, errors.Is(err, base.ErrAuthenticationFailed))
			assert.False(t, errors.Is(err, base.ErrConnectionTimeout))

			assert.False(t, rc.Bound(), "no business connection bound")
			_, hasPrincipal := rc.Principal()
			assert.False(t, hasPrincipal)
			assert.Equal(t, dialsBefore+1, f.engine.Dials(), "only the directory was opened")
		})
	}
}

func TestLoginDirectoryUnreachable(t *testing.T) {
	f := newFixture(t)
	f.engine.SetUnreachable(directory.Host, true)
	rc := f.router.NewContext("req-1")

	_, err := quietAuthenticator(nil).Login(context.Background(), rc, "jdoe", "correct horse")
	require.Error(t, err)
	assert.True(t, errors.Is(err, base.ErrConnectionTimeout))
	assert.False(t, errors.Is(err, base.ErrAuthenticationFailed), "timeouts and auth failures stay distinct")
	assert.True(t, gateway.IsDirectoryError(err))
}

func TestLoginBusinessUnreachable(t *testing.T) {
	f := newFixture(t)
	f.engine.SetUnreachable("tenants.local", true)
	rc := f.router.NewContext("req-1")

	_, err := quietAuthenticator(nil).Login(context.Background(), rc, "jdoe", "correct horse")
	assert.True(t, errors.Is(err, base.ErrConnectionTimeout))
	assert.False(t, gateway.IsDirectoryError(err))
	assert.False(t, rc.Bound())
}

func TestRebind(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tests := []struct {
		name              string
		cache             DescriptorCache
		wantDirectoryDial bool
	}{
		{name: "without cache", cache: nil, wantDirectoryDial: true},
		{name: "with warm cache", cache: NewRedisDescriptorCache(client, 0), wantDirectoryDial: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := quietAuthenticator(tt.cache)

			login := f.router.NewContext("req-login")
			res, err := a.Login(ctx, login, "jdoe", "correct horse")
			require.NoError(t, err)
			require.NoError(t, login.Close(ctx))
			dialsAfterLogin := f.engine.Dials()

			rc := f.router.NewContext("req-next")
			defer rc.Close(ctx)
			require.NoError(t, a.Rebind(ctx, rc, res.Principal()))

			assert.Equal(t, "tenant_acme", rc.Tenant())
			p, ok := rc.Principal()
			require.True(t, ok)
			assert.Equal(t, f.userID, p.UserID)

			dials := f.engine.Dials() - dialsAfterLogin
			if tt.wantDirectoryDial {
				assert.Equal(t, 2, dials, "directory and business")
			} else {
				assert.Equal(t, 1, dials, "business only")
			}
		})
	}
}

func TestResolveDescriptorUnknownLicense(t *testing.T) {
	f := newFixture(t)
	rc := f.router.NewContext("req-1")

	_, err := quietAuthenticator(nil).ResolveDescriptor(context.Background(), rc, primitive.NewObjectID())
	assert.True(t, errors.Is(err, base.ErrAuthenticationFailed))
}

func TestLoginFilterShape(t *testing.T) {
	filter := LoginFilter("jdoe", "abc")
	clauses, ok := filter["$and"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, bson.A{
		bson.M{"users.identifiers.type": "nucleotic"},
		bson.M{"users.identifiers.login": "jdoe"},
		bson.M{"identifiers.password": "abc"},
	}, clauses)
}
