// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/base"
)

// ReconcileOptions controls ReconcileOrphanArchives
type ReconcileOptions struct {
	// Purge deletes the orphan records found. Deletes in archive collections are not archived.
	Purge bool
}

// OrphanArchive is an archive record whose mutation never committed
type OrphanArchive struct {
	ArchiveID  primitive.ObjectID `json:"archiveId"`
	Action     string             `json:"action"`
	DocumentID primitive.ObjectID `json:"documentId"`
	Date       time.Time          `json:"date"`
	Reason     string             `json:"reason"`
}

// ReconcileReport summarizes one collection's archive scan
type ReconcileReport struct {
	Collection string          `json:"collection"`
	Scanned    int             `json:"scanned"`
	Skipped    int             `json:"skipped"` // records with no resolvable document identity
	Orphans    []OrphanArchive `json:"orphans"`
	Purged     int             `json:"purged"`
}

// Orphan reasons
const (
	ReasonStillLive     = "document still stored unchanged after remove"
	ReasonNotCommitted  = "live document equals the archived snapshot"
	ReasonEmptySnapshot = "nothing was stored under the identity"
)

// ReconcileOrphanArchives scans <collection>_archived for records left by a
// replace or remove that failed after archiving:
//   - a remove record whose document is still stored, unchanged
//   - the newest update record of a document, when the stored document equals its snapshot
//   - a record with an empty snapshot for an identity that holds no document
//
// Business role only.
func (d *Documents) ReconcileOrphanArchives(ctx context.Context, collection string, opts ReconcileOptions) (ReconcileReport, error) {
	report := ReconcileReport{Collection: collection, Orphans: []OrphanArchive{}}
	if !d.versioned() {
		return report, d.wrap("Reconcile", "the global directory keeps no archives", base.ErrUnsupportedOperation)
	}

	archived := ArchiveCollection(collection)
	raw, err := d.Find(ctx, archived, FindOptions{Sort: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}})
	if err != nil {
		return report, err
	}

	records := make([]ArchiveRecord, 0, len(raw))
	newestUpdate := map[primitive.ObjectID]int{}
	for _, r := range raw {
		rec, err := decodeArchiveRecord(r)
		if err != nil || rec.DocumentID.IsZero() {
			report.Skipped++
			continue
		}
		records = append(records, rec)
		if rec.Action == ActionUpdate {
			newestUpdate[rec.DocumentID] = len(records) - 1
		}
	}
	report.Scanned = len(raw)

	live := map[primitive.ObjectID]bson.M{}
	for i, rec := range records {
		current, seen := live[rec.DocumentID]
		if !seen {
			docs, err := d.Find(ctx, collection, FindOptions{Filter: bson.M{"_id": rec.DocumentID}, Limit: 1})
			if err != nil {
				return report, err
			}
			if len(docs) > 0 {
				current = docs[0]
			}
			live[rec.DocumentID] = current
		}

		reason := ""
		switch {
		case len(rec.Document) == 0:
			if current == nil {
				reason = ReasonEmptySnapshot
			}
		case rec.Action == ActionRemove:
			if current != nil && sameDocument(current, rec.Document[0]) {
				reason = ReasonStillLive
			}
		case rec.Action == ActionUpdate:
			if newestUpdate[rec.DocumentID] == i && current != nil &&
				updatedBefore(current, rec.Date) && sameDocument(current, rec.Document[0]) {
				reason = ReasonNotCommitted
			}
		}
		if reason == "" {
			continue
		}
		report.Orphans = append(report.Orphans, OrphanArchive{
			ArchiveID:  rec.ID,
			Action:     rec.Action,
			DocumentID: rec.DocumentID,
			Date:       rec.Date,
			Reason:     reason,
		})
	}

	if opts.Purge {
		for _, orphan := range report.Orphans {
			n, err := d.store.DeleteOne(ctx, archived, bson.M{"_id": orphan.ArchiveID})
			if err != nil {
				return report, d.wrap("Reconcile", fmt.Sprintf("purge of %s failed", orphan.ArchiveID.Hex()), err)
			}
			report.Purged += int(n)
		}
	}

	d.rc.log.Info("Archive reconciliation finished", map[string]interface{}{
		"collection": archived,
		"scanned":    report.Scanned,
		"orphans":    len(report.Orphans),
		"purged":     report.Purged,
	})
	return report, nil
}

// sameDocument compares two stored documents. Datetimes compare at the
// store's millisecond precision and numbers compare by value.
// updatedBefore reports whether doc's common.update.date is older than date.
// A committed replace stamps a date no older than its archive record.
func updatedBefore(doc bson.M, date time.Time) bool {
	update, ok := commonOf(doc)["update"]
	if !ok {
		return true
	}
	var at interface{}
	switch u := update.(type) {
	case bson.M:
		at = u["date"]
	case map[string]interface{}:
		at = u["date"]
	case bson.D:
		at = u.Map()["date"]
	}
	switch t := at.(type) {
	case time.Time:
		return t.Truncate(time.Millisecond).Before(date.Truncate(time.Millisecond))
	case primitive.DateTime:
		return t.Time().Before(date.Truncate(time.Millisecond))
	}
	return true
}

func sameDocument(a, b bson.M) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, exists := b[k]
		if !exists || !sameValue(va, vb) {
			return false
		}
	}
	return true
}

func sameValue(a, b interface{}) bool {
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch va := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Truncate(time.Millisecond).Equal(vb.Truncate(time.Millisecond))
	case bson.M:
		vb, ok := b.(bson.M)
		return ok && sameDocument(va, vb)
	case bson.A:
		vb, ok := b.(bson.A)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !sameValue(va[i], vb[i]) {
				return false
			}
		}
		return true
	case bson.D:
		vb, ok := b.(bson.D)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if va[i].Key != vb[i].Key || !sameValue(va[i].Value, vb[i].Value) {
				return false
			}
		}
		return true
	case primitive.ObjectID:
		vb, ok := b.(primitive.ObjectID)
		return ok && va == vb
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	}
	return fmt.Sprintf("%T:%v", a, a) == fmt.Sprintf("%T:%v", b, b)
}

func number(v interface{}) (float64, bool) {
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
