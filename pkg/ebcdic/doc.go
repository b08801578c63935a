// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package ebcdic bridges EBCDIC and ASCII octet streams.

IBM mainframe PeSIT implementations encode whole FPDUs, header included,
in EBCDIC codepage 037. The bridge classifies an inbound frame by
inspecting its fixed header and converts full buffers through a pair of
256-entry lookup tables built once at init. The ASCII-to-EBCDIC table is
the byte-exact inverse of the EBCDIC-to-ASCII table, so

	ToASCII(ToEBCDIC(b)) == b

for every byte value.

# Detection

Classification is heuristic: binary header bytes on ASCII-mode peers are
small integers, while codepage 037 letters and digits are uniformly at
or above 0x80. The default policy classifies a stream as EBCDIC when at
least 4 of the first 6 bytes have the high bit set. The threshold was
tuned against one mainframe vendor's implementation and is not derived
from the PeSIT specification; it is exposed as a configurable
[Detector] rather than a constant.
*/
package ebcdic
