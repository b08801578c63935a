// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package session drives the PeSIT verb sequence for one file transfer.

A [Session] owns exactly one transport connection and walks the states

	Idle → Connecting → Connected → Transferring → Synchronizing →
	Completing → Closed

with Aborted reachable from any non-Closed state. Sync points are
exchanged at the negotiated interval during the data phase; each
acknowledged sync point advances the transfer's restart position, which
never moves backward. Cancellation is cooperative: Cancel marks the
session and the next protocol checkpoint observes the flag and issues
ABORT.

[TransferTracker] keeps per-transfer bookkeeping (state, last sync
point, byte counts) and gates resumption: a transfer is resumable only
if it ended in a failed or aborted state with sync points enabled and
at least one acknowledged sync point.
*/
package session
