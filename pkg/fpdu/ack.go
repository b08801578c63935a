package fpdu

import (
	"github.com/sirosfoundation/go-pesit/pkg/param"
)

// Acknowledgement and control constructors. These verbs carry at most a
// couple of parameters, so plain functions replace the builder pattern.

// NewAConnect answers a CONNECT. assignedID is the id the server
// assigns to the connection; a non-zero diag refuses it.
func NewAConnect(assignedID, requesterID byte, diag []byte) (*FPDU, error) {
	f := &FPDU{Verb: VerbAConnect, IDDst: requesterID, IDSrc: assignedID}
	add := newParamList(f)
	add.int(param.Version, DefaultVersion)
	if len(diag) > 0 {
		add.bytes(param.Diag, diag)
	}
	return add.finish()
}

// NewAckCreate answers a CREATE; a non-zero diag refuses the file.
func NewAckCreate(peerID byte, diag []byte) (*FPDU, error) {
	return ackWithDiag(VerbAckCreate, peerID, diag)
}

// NewAckSelect answers a SELECT; a non-zero diag refuses the file.
func NewAckSelect(peerID byte, diag []byte) (*FPDU, error) {
	return ackWithDiag(VerbAckSelect, peerID, diag)
}

// NewSyn requests a sync point acknowledgement for PI_20 number n.
func NewSyn(peerID byte, n uint64) (*FPDU, error) {
	f := &FPDU{Verb: VerbSyn, IDDst: peerID, IDSrc: 0}
	add := newParamList(f)
	add.int(param.SyncNumber, n)
	return add.finish()
}

// NewAckSyn acknowledges sync point n.
func NewAckSyn(peerID byte, n uint64) (*FPDU, error) {
	f := &FPDU{Verb: VerbAckSyn, IDDst: peerID, IDSrc: 0}
	add := newParamList(f)
	add.int(param.SyncNumber, n)
	return add.finish()
}

// NewDTF wraps payload bytes in a single-article DTF.
func NewDTF(peerID byte, data []byte) *FPDU {
	return &FPDU{Verb: VerbDTF, IDDst: peerID, IDSrc: 1, Data: data}
}

// NewDTFEnd closes the data phase. endCode is the PI_19 end of transfer
// code, zero for a normal end.
func NewDTFEnd(peerID byte, endCode uint64) (*FPDU, error) {
	f := &FPDU{Verb: VerbDTFEnd, IDDst: peerID, IDSrc: 0}
	add := newParamList(f)
	add.int(param.EndCode, endCode)
	return add.finish()
}

// NewAckDTFEnd acknowledges DTF_END.
func NewAckDTFEnd(peerID byte, diag []byte) (*FPDU, error) {
	return ackWithDiag(VerbAckDTFEnd, peerID, diag)
}

// NewRelease closes the session.
func NewRelease(peerID byte) *FPDU {
	return &FPDU{Verb: VerbRelease, IDDst: peerID, IDSrc: 0}
}

// NewAckRelease confirms a RELEASE.
func NewAckRelease(peerID byte) *FPDU {
	return &FPDU{Verb: VerbAckRelease, IDDst: peerID, IDSrc: 0}
}

// NewAbort tears the session down; diag carries the PI_02 reason when
// known.
func NewAbort(peerID byte, diag []byte) (*FPDU, error) {
	return ackWithDiag(VerbAbort, peerID, diag)
}

func ackWithDiag(v Verb, peerID byte, diag []byte) (*FPDU, error) {
	f := &FPDU{Verb: v, IDDst: peerID, IDSrc: 0}
	add := newParamList(f)
	if len(diag) > 0 {
		add.bytes(param.Diag, diag)
	}
	return add.finish()
}
