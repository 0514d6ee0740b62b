// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/shared/notify"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	resp := map[string]interface{}{
		"status":    "healthy",
		"service":   "nucleotic-gateway",
		"timestamp": time.Now().UTC(),
	}

	dir, err := rc.Directory(r.Context())
	var status *base.HealthStatus
	if err == nil {
		status, err = dir.HealthCheck(r.Context())
	}
	if err == nil && status != nil && !status.Healthy {
		err = base.NewConnectorError(gateway.RoleDirectory, "HealthCheck", status.Error, base.ErrConnectionTimeout)
	}

	code := http.StatusOK
	if err != nil {
		n, _ := notify.FromError(err, gateway.IsDirectoryError(err))
		resp["status"] = "degraded"
		resp["directory"] = n
		code = http.StatusServiceUnavailable
	} else {
		resp["directory"] = status
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)

	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Login == "" {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return
	}

	res, err := s.auth.Login(r.Context(), rc, req.Login, req.Password)
	if err != nil {
		promLogins.WithLabelValues("failure").Inc()
		s.writeError(w, rc, err)
		return
	}

	token, claims, err := s.sessions.Issue(res)
	if err != nil {
		promLogins.WithLabelValues("failure").Inc()
		s.writeError(w, rc, err)
		return
	}
	promLogins.WithLabelValues("success").Inc()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeDocument(w, http.StatusOK, bson.M{
		"user":      res.Profile,
		"token":     token,
		"expiresAt": claims.ExpiresAt.Time.UTC(),
	})
}

// handleLogout revokes the session until its natural expiry. It needs no
// database, so it works while the tenant store is down.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)

	claims, err := s.session(r)
	if err != nil {
		s.writeError(w, rc, err)
		return
	}
	if err := s.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		s.writeError(w, rc, err)
		return
	}
	promSessionsRevoked.Inc()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	rc.Logger().Info("Session destroyed", map[string]interface{}{"login": claims.Login})
	s.writeNotification(w, http.StatusOK, notify.SessionDestroyed)
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}

	opts, err := findOptions(r.URL.Query())
	if err != nil {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return
	}

	docs, err := s.business(r).Find(r.Context(), collection, opts)
	if err != nil {
		s.writeError(w, rc, err)
		return
	}
	if docs == nil {
		docs = []bson.M{}
	}
	writeDocument(w, http.StatusOK, bson.M{"documents": docs})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	collection, ok := s.collection(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return
	}

	n, err := s.business(r).Count(r.Context(), collection, filter)
	if err != nil {
		s.writeError(w, rc, err)
		return
	}
	writeDocument(w, http.StatusOK, bson.M{"count": n})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	collection, ok := s.writableCollection(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return
	}

	res, err := s.business(r).Save(r.Context(), collection, doc)
	if err != nil {
		s.writeError(w, rc, err)
		return
	}

	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	out := bson.M{"_id": res.ID, "inserted": res.Inserted}
	if res.Document != nil {
		out["document"] = res.Document
	}
	writeDocument(w, status, out)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	collection, ok := s.writableCollection(w, r)
	if !ok {
		return
	}

	res, err := s.business(r).Remove(r.Context(), collection, gateway.EncodedIdentity(mux.Vars(r)["id"]))
	if err != nil {
		s.writeError(w, rc, err)
		return
	}

	removed := res.RemovedRelations
	if removed == nil {
		removed = []primitive.ObjectID{}
	}
	if claims := claimsFrom(r); claims != nil {
		rc.Logger().Info("Document removed", map[string]interface{}{
			"collection": collection,
			"_id":        res.DocumentID.Hex(),
			"relations":  len(removed),
			"login":      claims.Login,
		})
	}
	writeDocument(w, http.StatusOK, bson.M{"_id": res.DocumentID, "removedRelations": removed})
}

// business returns the handle bound by withSession
func (s *Server) business(r *http.Request) *gateway.Documents {
	docs, _ := requestContextFrom(r).Business()
	return docs
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["collection"]
	if !validCollection(name) {
		s.writeNotification(w, http.StatusBadRequest, notify.InvalidRequest)
		return "", false
	}
	return name, true
}

// writableCollection refuses direct writes to archive collections
func (s *Server) writableCollection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, ok := s.collection(w, r)
	if !ok {
		return "", false
	}
	if strings.HasSuffix(name, gateway.ArchiveSuffix) {
		s.writeError(w, requestContextFrom(r), base.NewConnectorError("server", "Write",
			"archive collections are read-only", base.ErrUnsupportedOperation))
		return "", false
	}
	return name, true
}

// writeError maps err to its notification and logs it with the request's tenant
func (s *Server) writeError(w http.ResponseWriter, rc *gateway.RequestContext, err error) {
	n, status := notify.FromError(err, gateway.IsDirectoryError(err))
	fields := map[string]interface{}{"code": n.Code}
	if status >= http.StatusInternalServerError {
		s.slog.ErrorWithCode(rc.Tenant(), rc.RequestID(), "Request failed", status, err, fields)
	} else {
		fields["error"] = err.Error()
		rc.Logger().Warn("Request rejected", fields)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="nucleotic"`)
	}
	s.writeNotification(w, status, n)
}

func (s *Server) writeNotification(w http.ResponseWriter, status int, n notify.Notification) {
	writeJSON(w, status, n)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDocument renders documents as relaxed Extended JSON, keeping
// ObjectID and date types recognizable to the client
func writeDocument(w http.ResponseWriter, status int, doc bson.M) {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, notify.InternalError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
