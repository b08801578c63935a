// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package param models the PeSIT parameter catalog.

Every FPDU except the data-transfer family carries an ordered sequence of
parameters. A scalar parameter (PI, Parameter Identifier) holds raw bytes
with a semantic type; a group parameter (PGI, Parameter Group Identifier)
wraps one level of child PIs. The catalog is a static, read-only table
built at package init and safe for unsynchronized concurrent reads.

# Lookup

Resolve a wire identifier against the catalog:

	p, err := param.Lookup(0x0d)
	// p == param.TransferID

An identifier with no catalog match is an error, never skipped: length
framing for unknown types cannot be trusted.

# Encoding

Integers are encoded big-endian at the smallest width (1 to 4 bytes)
that holds the value, subject to the catalog's length rule:

	v, err := param.Int(param.SyncNumber, 256) // 2 bytes

Strings use single-byte Latin-1 characters. This is a protocol
constraint, not an implementation shortcut.
*/
package param
