// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package pesit provides the main client interface for PeSIT file
transfers.

A [Client] owns the partner endpoint configuration and opens one
session per transfer:

  - [Client.SendFile] writes a file to the partner (CREATE + WRITE
    sequence)
  - [Client.ReceiveFile] reads a previously transferred file back
    (SELECT + READ sequence)
  - [Client.Resume] restarts an interrupted send from its last
    acknowledged sync point
  - [Client.Cancel] requests cooperative cancellation of an in-flight
    transfer

Terminal transfer state, byte counts and the last acknowledged sync
point are reported in [TransferStatus] and tracked across calls, which
is what gates [Client.Resume]: only a failed or aborted transfer with
sync points enabled and a non-zero sync position can be resumed.
*/
package pesit
