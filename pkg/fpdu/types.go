package fpdu

import (
	"github.com/sirosfoundation/go-pesit/pkg/param"
)

// Verb enumerates the FPDU types of the Hors-SIT profile.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbConnect
	VerbAConnect
	VerbRelease
	VerbAckRelease
	VerbAbort
	VerbCreate
	VerbAckCreate
	VerbSelect
	VerbAckSelect
	VerbDTF
	VerbDTFDA
	VerbDTFMA
	VerbDTFFA
	VerbDTFEnd
	VerbAckDTFEnd
	VerbSyn
	VerbAckSyn
)

var verbNames = map[Verb]string{
	VerbConnect:    "CONNECT",
	VerbAConnect:   "ACONNECT",
	VerbRelease:    "RELEASE",
	VerbAckRelease: "ACK_RELEASE",
	VerbAbort:      "ABORT",
	VerbCreate:     "CREATE",
	VerbAckCreate:  "ACK_CREATE",
	VerbSelect:     "SELECT",
	VerbAckSelect:  "ACK_SELECT",
	VerbDTF:        "DTF",
	VerbDTFDA:      "DTFDA",
	VerbDTFMA:      "DTFMA",
	VerbDTFFA:      "DTFFA",
	VerbDTFEnd:     "DTF_END",
	VerbAckDTFEnd:  "ACK_DTF_END",
	VerbSyn:        "SYN",
	VerbAckSyn:     "ACK_SYN",
}

func (v Verb) String() string {
	if s, ok := verbNames[v]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsData reports whether the verb belongs to the DTF family, whose body
// is opaque payload bytes rather than parameter entries.
func (v Verb) IsData() bool {
	switch v {
	case VerbDTF, VerbDTFDA, VerbDTFMA, VerbDTFFA:
		return true
	}
	return false
}

// phaseType is the on-wire (phase, type) pair identifying a verb.
type phaseType struct {
	phase, typ byte
}

var verbWire = map[Verb]phaseType{
	VerbConnect:    {1, 1},
	VerbAConnect:   {1, 2},
	VerbRelease:    {1, 5},
	VerbAckRelease: {1, 6},
	VerbAbort:      {1, 7},
	VerbCreate:     {2, 1},
	VerbAckCreate:  {2, 2},
	VerbSelect:     {2, 3},
	VerbAckSelect:  {2, 4},
	VerbDTF:        {4, 1},
	VerbDTFDA:      {4, 2},
	VerbDTFMA:      {4, 3},
	VerbDTFFA:      {4, 4},
	VerbDTFEnd:     {4, 5},
	VerbAckDTFEnd:  {4, 6},
	VerbSyn:        {4, 7},
	VerbAckSyn:     {4, 8},
}

var wireVerb = func() map[phaseType]Verb {
	m := make(map[phaseType]Verb, len(verbWire))
	for v, pt := range verbWire {
		m[pt] = v
	}
	return m
}()

// FPDU is one protocol message. Exactly one of Params and Data is
// meaningful, selected by the verb family. For DTF verbs, IDSrc doubles
// as the article indicator: 1 means single-article payload, greater
// values mean the body is in [article_len:2][article_bytes] form.
type FPDU struct {
	Verb   Verb
	IDDst  byte
	IDSrc  byte
	Params []param.Value
	Data   []byte
}

// MultiArticle reports whether a DTF body carries length-prefixed
// articles.
func (f *FPDU) MultiArticle() bool {
	return f.Verb.IsData() && f.IDSrc > 1
}

// Param returns the first occurrence of p, searching group children one
// level deep.
func (f *FPDU) Param(p *param.Parameter) (param.Value, bool) {
	for _, v := range f.Params {
		if v.Param == p {
			return v, true
		}
		for _, c := range v.Children {
			if c.Param == p {
				return c, true
			}
		}
	}
	return param.Value{}, false
}

// Diagnostic returns the PI_02 code as a big-endian integer, or zero
// when absent.
func (f *FPDU) Diagnostic() uint64 {
	v, ok := f.Param(param.Diag)
	if !ok {
		return 0
	}
	return v.Uint()
}
