// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport provides the byte-stream abstraction the PeSIT codec
runs over: blocking reads and writes on a TCP connection with a
configurable per-read timeout, plus dial and listen helpers.

TLS, when configured, is applied below this abstraction and is
transparent to the codec. A read timeout surfaces as ErrTimeout and a
closed peer as ErrClosed; both are recoverable at the session layer,
which decides whether to retry, resume, or abort.
*/
package transport
