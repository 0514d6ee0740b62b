// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/auth"
	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/connectors/memory"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/logger"
)

const (
	testSalt     = "pepper"
	testPassword = "correct horse"
)

var directory = base.Descriptor{Host: "directory.local", Port: 27017, DBName: "directory"}

type testServer struct {
	engine *memory.Engine
	redis  *miniredis.Miniredis
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine := memory.NewEngine()

	store, err := engine.Dial(context.Background(), directory)
	require.NoError(t, err)
	_, err = store.InsertOne(context.Background(), auth.LicensesCollection, bson.M{
		"name":        "Acme",
		"identifiers": bson.M{"password": auth.HashPassword(testPassword, testSalt)},
		"users": bson.A{bson.M{
			"_id":         primitive.NewObjectID(),
			"firstName":   "Jane",
			"identifiers": bson.A{bson.M{"type": auth.IdentifierType, "login": "jdoe"}},
		}},
		"databases": bson.A{bson.M{"host": "tenants.local", "port": 27017, "login": "svc", "password": "pw", "dbName": "tenant_acme"}},
	})
	require.NoError(t, err)

	quiet := logger.NewWithWriter("test", io.Discard)
	router, err := gateway.NewRouter(gateway.RouterOptions{
		Directory: directory,
		Dialer:    engine.Dial,
		Cleaner:   gateway.RelationsCollectionCleaner{},
		Logger:    quiet,
	})
	require.NoError(t, err)

	sessions, err := auth.NewSessionIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := New(Options{
		Router:        router,
		Authenticator: auth.NewAuthenticator(auth.AuthenticatorOptions{HashSalt: testSalt, Logger: quiet}),
		Sessions:      sessions,
		Revoker:       auth.NewRedisRevoker(client),
		Logger:        quiet,
	})
	require.NoError(t, err)

	return &testServer{engine: engine, redis: mr, server: s}
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, "POST", "/login", `{"login":"jdoe","password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func oid(t *testing.T, v interface{}) string {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected an Extended JSON ObjectID, got %v", v)
	hex, _ := m["$oid"].(string)
	require.NotEmpty(t, hex)
	return hex
}

func documents(t *testing.T, rec *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	docs, ok := decode(t, rec)["documents"].([]interface{})
	require.True(t, ok)
	return docs
}

func TestCrossOriginRequests(t *testing.T) {
	quiet := logger.NewWithWriter("test", io.Discard)
	router, err := gateway.NewRouter(gateway.RouterOptions{
		Directory: directory,
		Dialer:    memory.NewEngine().Dial,
		Logger:    quiet,
	})
	require.NoError(t, err)
	sessions, err := auth.NewSessionIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "refused without configured origins", origin: "https://evil.example", want: ""},
		{name: "configured origin", allowed: []string{"https://app.example"}, origin: "https://app.example", want: "https://app.example"},
		{name: "other origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Options{
				Router:         router,
				Authenticator:  auth.NewAuthenticator(auth.AuthenticatorOptions{HashSalt: testSalt, Logger: quiet}),
				Sessions:       sessions,
				Logger:         quiet,
				AllowedOrigins: tt.allowed,
			})
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/health", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, base.ErrConfiguration))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	ts.engine.SetUnreachable(directory.Host, true)
	rec = ts.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "0-101", body["directory"].(map[string]interface{})["code"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-from-client")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-from-client", rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, "GET", "/health", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "generated when absent")
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	successBefore := testutil.ToFloat64(promLogins.WithLabelValues("success"))
	failureBefore := testutil.ToFloat64(promLogins.WithLabelValues("failure"))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantNote string
	}{
		{"malformed body", `{"login":`, http.StatusBadRequest, "2-105"},
		{"missing login", `{"password":"x"}`, http.StatusBadRequest, "2-105"},
		{"wrong password", `{"login":"jdoe","password":"nope"}`, http.StatusUnauthorized, "1-101"},
		{"unknown user", `{"login":"ghost","password":"` + testPassword + `"}`, http.StatusUnauthorized, "1-101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "POST", "/login", tt.body, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantNote, decode(t, rec)["code"])
		})
	}

	rec := ts.do(t, "POST", "/login", `{"login":"jdoe","password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Jane", user["firstName"])
	assert.NotContains(t, user, "identifiers")
	assert.NotEmpty(t, body["token"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	assert.Equal(t, successBefore+1, testutil.ToFloat64(promLogins.WithLabelValues("success")))
	assert.Equal(t, failureBefore+2, testutil.ToFloat64(promLogins.WithLabelValues("failure")))
}

func TestLoginDirectoryUnreachable(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.SetUnreachable(directory.Host, true)

	rec := ts.do(t, "POST", "/login", `{"login":"jdoe","password":"`+testPassword+`"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "0-101", decode(t, rec)["code"])
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	for _, token := range []string{"", "not-a-token"} {
		rec := ts.do(t, "GET", "/api/Orders", "", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "1-103", decode(t, rec)["code"])
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestSessionCookieIsAccepted(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	req := httptest.NewRequest("GET", "/api/Orders", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, "POST", "/api/Orders", `{"label":"first","qty":2}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, true, created["inserted"])
	id := oid(t, created["_id"])

	docs := documents(t, ts.do(t, "GET", "/api/Orders", "", token))
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]interface{})
	assert.Equal(t, "first", doc["label"])
	common := doc["common"].(map[string]interface{})
	require.Contains(t, common, "creation")
	assert.Contains(t, common, "update")
	creation := common["creation"]

	rec = ts.do(t, "POST", "/api/Orders", `{"_id":{"$oid":"`+id+`"},"label":"second"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, false, updated["inserted"])
	stored := updated["document"].(map[string]interface{})
	assert.Equal(t, "second", stored["label"])
	assert.Equal(t, creation, stored["common"].(map[string]interface{})["creation"], "creation stamp survives an edit")

	archived := documents(t, ts.do(t, "GET", "/api/Orders_archived", "", token))
	require.Len(t, archived, 1)
	assert.Equal(t, gateway.ActionUpdate, archived[0].(map[string]interface{})["action"])

	rec = ts.do(t, "GET", "/api/Orders/count", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = ts.do(t, "DELETE", "/api/Orders/"+id, "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	removed := decode(t, rec)
	assert.Equal(t, id, oid(t, removed["_id"]))
	assert.Equal(t, []interface{}{}, removed["removedRelations"])

	assert.Empty(t, documents(t, ts.do(t, "GET", "/api/Orders", "", token)))
	assert.Len(t, documents(t, ts.do(t, "GET", "/api/Orders_archived", "", token)), 2)
}

func TestRemoveCascadesRelations(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.do(t, "POST", "/api/Orders", `{"label":"parent"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := oid(t, decode(t, rec)["_id"])

	rec = ts.do(t, "POST", "/api/Relations", `{"from":{"$oid":"`+id+`"},"to":{"$oid":"`+primitive.NewObjectID().Hex()+`"}}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, "DELETE", "/api/Orders/"+id, "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["removedRelations"], 1)
	assert.Empty(t, documents(t, ts.do(t, "GET", "/api/Relations", "", token)))
}

func TestFindQueryParameters(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.Equal(t, http.StatusCreated, ts.do(t, "POST", "/api/Items", body, token).Code)
	}

	q := url.Values{"sort": {"n:-1"}, "limit": {"2"}, "fields": {"n"}}
	docs := documents(t, ts.do(t, "GET", "/api/Items?"+q.Encode(), "", token))
	require.Len(t, docs, 2)
	assert.Equal(t, float64(3), docs[0].(map[string]interface{})["n"])
	assert.Equal(t, float64(2), docs[1].(map[string]interface{})["n"])
	assert.NotContains(t, docs[0], "common")

	q = url.Values{"filter": {`{"n":{"$in":[1,3]}}`}, "sort": {"n:1"}}
	docs = documents(t, ts.do(t, "GET", "/api/Items?"+q.Encode(), "", token))
	require.Len(t, docs, 2)
	assert.Equal(t, float64(1), docs[0].(map[string]interface{})["n"])

	q = url.Values{"skip": {"2"}, "sort": {"n:1"}}
	docs = documents(t, ts.do(t, "GET", "/api/Items?"+q.Encode(), "", token))
	require.Len(t, docs, 1)
	assert.Equal(t, float64(3), docs[0].(map[string]interface{})["n"])

	// count is an estimate over the whole collection
	q = url.Values{"filter": {`{"n":1}`}}
	rec := ts.do(t, "GET", "/api/Items/count?"+q.Encode(), "", token)
	assert.Equal(t, float64(3), decode(t, rec)["count"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantNote string
	}{
		{"bad sort", "GET", "/api/Items?sort=n:up", "", http.StatusBadRequest, "2-105"},
		{"negative limit", "GET", "/api/Items?limit=-1", "", http.StatusBadRequest, "2-105"},
		{"bad filter", "GET", "/api/Items?filter=%7Bnope", "", http.StatusBadRequest, "2-105"},
		{"bad count filter", "GET", "/api/Items/count?filter=%7Bnope", "", http.StatusBadRequest, "2-105"},
		{"bad collection", "GET", "/api/1Items", "", http.StatusBadRequest, "2-105"},
		{"bad body", "POST", "/api/Items", "{not json", http.StatusBadRequest, "2-105"},
		{"bad identity", "DELETE", "/api/Items/xyz", "", http.StatusBadRequest, "2-101"},
		{"write to archive", "POST", "/api/Items_archived", `{"a":1}`, http.StatusMethodNotAllowed, "2-102"},
		{"remove from archive", "DELETE", "/api/Items_archived/" + primitive.NewObjectID().Hex(), "", http.StatusMethodNotAllowed, "2-102"},
		{"replace missing", "POST", "/api/Items", `{"_id":{"$oid":"` + primitive.NewObjectID().Hex() + `"},"a":1}`, http.StatusNotFound, "2-104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body, token)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantNote, decode(t, rec)["code"])
		})
	}
}

func TestBusinessDatabaseUnreachable(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	ts.engine.SetUnreachable("tenants.local", true)

	rec := ts.do(t, "GET", "/api/Orders", "", token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "0-102", decode(t, rec)["code"])
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	revokedBefore := testutil.ToFloat64(promSessionsRevoked)

	rec := ts.do(t, "POST", "/logout", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1-102", decode(t, rec)["code"])
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0, "cookie cleared")
	assert.Equal(t, revokedBefore+1, testutil.ToFloat64(promSessionsRevoked))

	rec = ts.do(t, "GET", "/api/Orders", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "1-103", decode(t, rec)["code"])

	rec = ts.do(t, "POST", "/logout", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a revoked session cannot log out twice")

	rec = ts.do(t, "POST", "/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutWorksWhileTenantIsDown(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	ts.engine.SetUnreachable("tenants.local", true)

	rec := ts.do(t, "POST", "/logout", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRevocationListUnavailable(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	ts.redis.Close()

	rec := ts.do(t, "GET", "/api/Orders", "", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "9-999", decode(t, rec)["code"])
}

func TestRequestMetrics(t *testing.T) {
	ts := newTestServer(t)
	before := testutil.ToFloat64(promRequestsTotal.WithLabelValues("/health", "GET", "200"))

	ts.do(t, "GET", "/health", "", "")
	assert.Equal(t, before+1, testutil.ToFloat64(promRequestsTotal.WithLabelValues("/health", "GET", "200")))
}

func TestRunStopsOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ts.server.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
