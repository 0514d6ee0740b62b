// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package gateway routes document operations to the global directory and to the
tenant business database bound for the current request.

A Router is built once at startup with the directory descriptor and a
base.Dialer. Every inbound request gets its own RequestContext:

	rc := router.NewContext(requestID)
	defer rc.Close(ctx)

	dir, err := rc.Directory(ctx)          // opened on first use, then cached
	err = rc.Bind(ctx, licenseDescriptor)  // first bind wins
	biz, err := rc.Business()              // ErrNotBound before Bind

# Versioning

Business mutations follow archive-then-mutate. Replace and Remove first copy
the stored version into <collection>_archived as

	{action: "update"|"remove", author, date, documentId, document: [<prior version>]}

and only then commit. Insert stamps common.creation (once) and common.update
(always) with the current user. There is no transaction around the pair; a
mutation that fails after its archive write is logged at WARN and the leftover
record can be found later with ReconcileOrphanArchives.

The directory role writes documents as given and does not support Remove.

# Time zones

Datetimes are normalized to UTC time.Time on every read and write.
*/
package gateway
