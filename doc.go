// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gopesit implements the PeSIT Hors-SIT (PeSIT-E) file transfer
protocol used for interbank and mainframe file exchange over TCP.

# Overview

go-pesit is a Go implementation of the PeSIT protocol codec and session
layer. It encodes and decodes binary Functional Protocol Data Units
(FPDUs), models the nested PI/PGI parameter structure, reassembles
concatenated and fragmented data frames, bridges EBCDIC and ASCII octet
streams for IBM mainframe peers, and drives the sync-point/resume
protocol that lets an interrupted transfer restart without
retransmitting already-acknowledged data.

# Package Structure

The library is organized into the following packages:

	github.com/sirosfoundation/go-pesit/pkg/pesit     - Main client API (send, receive, cancel, resume)
	github.com/sirosfoundation/go-pesit/pkg/param     - PI/PGI parameter catalog and value encoding
	github.com/sirosfoundation/go-pesit/pkg/ebcdic    - EBCDIC/ASCII bridging (codepage 037)
	github.com/sirosfoundation/go-pesit/pkg/fpdu      - FPDU codec and message builders
	github.com/sirosfoundation/go-pesit/pkg/frame     - Frame concatenation and DTF reassembly
	github.com/sirosfoundation/go-pesit/pkg/session   - Transfer session state machine
	github.com/sirosfoundation/go-pesit/pkg/transport - TCP transport with per-read timeouts

# Quick Start

To send a file:

	import (
	    "github.com/sirosfoundation/go-pesit/pkg/pesit"
	)

	client, _ := pesit.NewClient(&pesit.ClientConfig{
	    Address:   "partner.example.com:1761",
	    Requester: "LOOP",
	    Server:    "CETOM1",
	})
	status, err := client.SendFile(ctx, "FILE", uint64(len(data)), bytes.NewReader(data))

# Scope

Only the Hors-SIT profile subset is implemented. TLS, when used, is
applied below the transport abstraction and is transparent to the codec.
Persistence of transfer history is delegated to a pluggable storage
layer; an in-memory store and a MongoDB store are provided.

# License

BSD-2-Clause License
*/
package gopesit
