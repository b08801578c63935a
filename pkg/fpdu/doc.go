// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package fpdu implements the PeSIT FPDU codec and message builders.

An FPDU (Functional Protocol Data Unit) is one protocol message. On the
wire it is laid out as

	[length:2][phase:1][type:1][id_dst:1][id_src:1][body]

where length is the total FPDU length including its own two bytes,
big-endian, always binary even for EBCDIC-mode peers. The (phase, type)
pair selects the verb. Data-transfer verbs (the DTF family) treat the
body as opaque payload bytes; every other verb carries an ordered
sequence of parameter entries

	[id:1][len:1 or 0xFF+len:2][value:len]

with PGI entries nesting one level of child PIs under the same framing.

Decoding is strict: truncated entries, identifiers without a catalog
match, and lengths overrunning the buffer are fatal errors. No partial
FPDU is ever returned. Encoding preserves the caller-supplied parameter
order, because some peers require a canonical PI ordering within
CONNECT (PI_07 before PI_22).

Builders construct well-formed FPDUs for each outbound verb from typed
fields with protocol defaults, in the functional-option style:

	f, err := fpdu.NewCreate(
	    fpdu.WithFileName("FILE"),
	    fpdu.WithRecordLength(506),
	).Build(peerID)
*/
package fpdu
