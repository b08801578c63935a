// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package frame reads and writes transport-level PeSIT frames.

PeSIT allows packing several FPDUs into one transport entity and
splitting one logical data unit across several DTF fragments. The
[Reader] undoes both: it pulls one length-prefixed frame from the
transport, detects whether the payload is a concatenation of sub-FPDUs,
decodes each through the fpdu codec, and merges consecutive DTF-family
fragments into a single logical FPDU. Decoded FPDUs are delivered one
at a time through Read, with extras buffered internally.

A frame whose payload arrives in EBCDIC (mainframe peers) is converted
to ASCII before any decoding; the [Writer] converts symmetrically when
replying to a detected-EBCDIC peer. The 2-byte length fields stay
binary in both modes.

Multi-article DTF payloads carry [article_len:2][article_bytes]
repeated; [ExtractArticles] and [CopyArticles] walk that structure.
*/
package frame
