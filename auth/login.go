// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package auth

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

const (
	// LicensesCollection is the directory collection holding tenant licenses
	LicensesCollection = "Licenses"

	// IdentifierType marks the users.identifiers entries this service logs in with
	IdentifierType = "nucleotic"
)

// HashPassword returns the hex SHA-512 digest of password+salt, the form
// stored under identifiers.password in license records
func HashPassword(password, salt string) string {
	sum := sha512.Sum512([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// LoginFilter is the directory query matching a license by user login and password digest
func LoginFilter(login, digest string) bson.M {
	return bson.M{"$and": bson.A{
		bson.M{"users.identifiers.type": IdentifierType},
		bson.M{"users.identifiers.login": login},
		bson.M{"identifiers.password": digest},
	}}
}

// LoginResult is what a successful login established
type LoginResult struct {
	LicenseID primitive.ObjectID
	UserID    primitive.ObjectID
	Login     string
	Profile   bson.M // the user record without its identifiers
	Database  base.Descriptor
}

// Principal returns the request identity for this login
func (r *LoginResult) Principal() gateway.Principal {
	return gateway.Principal{UserID: r.UserID, Login: r.Login, LicenseID: r.LicenseID}
}

// AuthenticatorOptions configures an Authenticator
type AuthenticatorOptions struct {
	HashSalt string
	Cache    DescriptorCache // optional
	Logger   *logger.Logger
}

// Authenticator checks credentials against the directory and binds the
// caller's business database.
type Authenticator struct {
	salt  string
	cache DescriptorCache
	log   *logger.Logger
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(opts AuthenticatorOptions) *Authenticator {
	a := &Authenticator{salt: opts.HashSalt, cache: opts.Cache, log: opts.Logger}
	if a.log == nil {
		a.log = logger.New("auth")
	}
	return a
}

// license is the part of a license record login needs
type license struct {
	ID        primitive.ObjectID `bson:"_id"`
	Users     []bson.M           `bson:"users"`
	Databases []base.Descriptor  `bson:"databases"`
}

// Login looks the credentials up in the directory. On success it binds the
// license's first database into rc and records the principal. Any mismatch,
// including a license naming the login for several users, fails with
// base.ErrAuthenticationFailed and leaves rc unbound.
func (a *Authenticator) Login(ctx context.Context, rc *gateway.RequestContext, login, password string) (*LoginResult, error) {
	dir, err := rc.Directory(ctx)
	if err != nil {
		return nil, err
	}

	found, err := dir.Find(ctx, LicensesCollection, gateway.FindOptions{
		Filter: LoginFilter(login, HashPassword(password, a.salt)),
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, a.fail(rc, login, "no license matches the credentials")
	}

	lic, err := decodeLicense(found[0])
	if err != nil {
		return nil, a.fail(rc, login, err.Error())
	}

	user, err := isolateUser(lic.Users, login)
	if err != nil {
		return nil, a.fail(rc, login, err.Error())
	}
	userID, err := gateway.ParseIdentity(user["_id"])
	if err != nil {
		return nil, a.fail(rc, login, "user record has no identity")
	}
	if len(lic.Databases) == 0 {
		return nil, a.fail(rc, login, "license has no database")
	}

	descriptor := lic.Databases[0]
	if err := rc.Bind(ctx, descriptor); err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.Put(ctx, lic.ID, descriptor); err != nil {
			rc.Logger().Warn("License descriptor not cached", map[string]interface{}{"error": err.Error()})
		}
	}

	res := &LoginResult{
		LicenseID: lic.ID,
		UserID:    userID,
		Login:     login,
		Profile:   withoutIdentifiers(user),
		Database:  descriptor,
	}
	rc.SetPrincipal(res.Principal())

	rc.Logger().Info("User logged in", map[string]interface{}{
		"login":      login,
		"license_id": lic.ID.Hex(),
	})
	return res, nil
}

// Rebind binds the business database of an existing session. The descriptor
// comes from the cache when present, else from the license record.
func (a *Authenticator) Rebind(ctx context.Context, rc *gateway.RequestContext, p gateway.Principal) error {
	descriptor, err := a.ResolveDescriptor(ctx, rc, p.LicenseID)
	if err != nil {
		return err
	}
	if err := rc.Bind(ctx, descriptor); err != nil {
		return err
	}
	rc.SetPrincipal(p)
	return nil
}

// ResolveDescriptor returns the first database descriptor of a license
func (a *Authenticator) ResolveDescriptor(ctx context.Context, rc *gateway.RequestContext, licenseID primitive.ObjectID) (base.Descriptor, error) {
	if a.cache != nil {
		d, ok, err := a.cache.Get(ctx, licenseID)
		if err == nil && ok {
			return d, nil
		}
		if err != nil {
			rc.Logger().Warn("License descriptor cache unavailable", map[string]interface{}{"error": err.Error()})
		}
	}

	dir, err := rc.Directory(ctx)
	if err != nil {
		return base.Descriptor{}, err
	}
	found, err := dir.Find(ctx, LicensesCollection, gateway.FindOptions{
		Filter:     bson.M{"_id": licenseID},
		Projection: bson.M{"databases": 1},
		Limit:      1,
	})
	if err != nil {
		return base.Descriptor{}, err
	}
	if len(found) == 0 {
		return base.Descriptor{}, base.NewConnectorError("auth", "ResolveDescriptor",
			fmt.Sprintf("license %s no longer exists", licenseID.Hex()), base.ErrAuthenticationFailed)
	}
	lic, err := decodeLicense(found[0])
	if err != nil || len(lic.Databases) == 0 {
		return base.Descriptor{}, base.NewConnectorError("auth", "ResolveDescriptor",
			fmt.Sprintf("license %s has no usable database", licenseID.Hex()), base.ErrAuthenticationFailed)
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, licenseID, lic.Databases[0]); err != nil {
			rc.Logger().Warn("License descriptor not cached", map[string]interface{}{"error": err.Error()})
		}
	}
	return lic.Databases[0], nil
}

func (a *Authenticator) fail(rc *gateway.RequestContext, login, reason string) error {
	rc.Logger().Warn("Authentication failed", map[string]interface{}{"login": login, "reason": reason})
	return base.NewConnectorError("auth", "Login", reason, base.ErrAuthenticationFailed)
}

func decodeLicense(raw bson.M) (license, error) {
	var lic license
	data, err := bson.Marshal(raw)
	if err != nil {
		return lic, fmt.Errorf("license record unreadable: %w", err)
	}
	if err := bson.Unmarshal(data, &lic); err != nil {
		return lic, fmt.Errorf("license record unreadable: %w", err)
	}
	return lic, nil
}

// isolateUser finds the single user holding a nucleotic identifier for login
func isolateUser(users []bson.M, login string) (bson.M, error) {
	var match bson.M
	count := 0
	for _, user := range users {
		if hasIdentifier(user, login) {
			match = user
			count++
		}
	}
	switch count {
	case 0:
		return nil, fmt.Errorf("no user of the license holds login %q", login)
	case 1:
		return match, nil
	}
	return nil, fmt.Errorf("%d users of the license hold login %q", count, login)
}

func hasIdentifier(user bson.M, login string) bool {
	ids, ok := user["identifiers"].(bson.A)
	if !ok {
		return false
	}
	for _, raw := range ids {
		id, ok := raw.(bson.M)
		if !ok {
			continue
		}
		if id["type"] == IdentifierType && id["login"] == login {
			return true
		}
	}
	return false
}

func withoutIdentifiers(user bson.M) bson.M {
	out := make(bson.M, len(user))
	for k, v := range user {
		if k != "identifiers" {
			out[k] = v
		}
	}
	return out
}
