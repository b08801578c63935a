package param

// Type is the semantic type of a parameter value, used for rendering
// and for the encoding rules in Int and String.
type Type int

const (
	TypeString   Type = iota // Latin-1 text
	TypeNumber               // big-endian unsigned integer
	TypeSymbol               // enumerated single value
	TypeBitmask              // bit flags
	TypeDateTime             // yyMMddHHmmss
	TypeBinary               // opaque bytes, rendered as hex
)

// Parameter is one catalog entry: a scalar PI or a group PGI.
// Length is the fixed width in bytes, 0 for variable-length parameters.
// Max bounds the encoded width of variable-length parameters; 0 means
// unbounded. Group entries carry neither value bytes nor a length rule.
type Parameter struct {
	ID     byte
	Name   string
	Type   Type
	Length int
	Max    int
	Group  bool
}

// Fixed reports whether the parameter has a fixed wire width.
func (p *Parameter) Fixed() bool { return !p.Group && p.Length > 0 }

// Scalar parameter identifiers (PIs) of the Hors-SIT profile.
var (
	Diag            = &Parameter{ID: 2, Name: "PI_02 diagnostic", Type: TypeBinary, Length: 3}
	Requester       = &Parameter{ID: 3, Name: "PI_03 requester", Type: TypeString, Max: 24}
	Server          = &Parameter{ID: 4, Name: "PI_04 server", Type: TypeString, Max: 24}
	Password        = &Parameter{ID: 5, Name: "PI_05 access password", Type: TypeString, Max: 16}
	Version         = &Parameter{ID: 6, Name: "PI_06 version", Type: TypeNumber, Length: 1}
	SyncOptions     = &Parameter{ID: 7, Name: "PI_07 sync interval and window", Type: TypeBinary, Length: 3}
	FileType        = &Parameter{ID: 11, Name: "PI_11 file type", Type: TypeNumber, Length: 2}
	FileName        = &Parameter{ID: 12, Name: "PI_12 file name", Type: TypeString, Max: 76}
	TransferID      = &Parameter{ID: 13, Name: "PI_13 transfer id", Type: TypeNumber, Max: 3}
	Attributes      = &Parameter{ID: 14, Name: "PI_14 requested attributes", Type: TypeBitmask, Length: 1}
	Priority        = &Parameter{ID: 17, Name: "PI_17 priority", Type: TypeNumber, Length: 1}
	RestartPoint    = &Parameter{ID: 18, Name: "PI_18 restart point", Type: TypeNumber, Max: 4}
	EndCode         = &Parameter{ID: 19, Name: "PI_19 end of transfer code", Type: TypeNumber, Length: 1}
	SyncNumber      = &Parameter{ID: 20, Name: "PI_20 sync number", Type: TypeNumber, Max: 4}
	Compression     = &Parameter{ID: 21, Name: "PI_21 compression", Type: TypeSymbol, Length: 1}
	AccessType      = &Parameter{ID: 22, Name: "PI_22 access type", Type: TypeSymbol, Length: 1}
	Resync          = &Parameter{ID: 23, Name: "PI_23 resync capability", Type: TypeSymbol, Length: 1}
	MaxEntitySize   = &Parameter{ID: 25, Name: "PI_25 max entity size", Type: TypeNumber, Max: 4}
	TransferLabel   = &Parameter{ID: 37, Name: "PI_37 transfer label", Type: TypeString, Max: 80}
	RecordFormat    = &Parameter{ID: 31, Name: "PI_31 record format", Type: TypeSymbol, Length: 1}
	RecordLength    = &Parameter{ID: 32, Name: "PI_32 record length", Type: TypeNumber, Max: 2}
	AllocationUnit  = &Parameter{ID: 41, Name: "PI_41 allocation unit", Type: TypeSymbol, Length: 1}
	ReservationSize = &Parameter{ID: 42, Name: "PI_42 reservation size", Type: TypeNumber, Max: 4}
	CreationDate    = &Parameter{ID: 51, Name: "PI_51 creation date", Type: TypeDateTime, Length: 12}
	Message         = &Parameter{ID: 91, Name: "PI_91 free message", Type: TypeString, Max: 254}
)

// Group parameter identifiers (PGIs). Each wraps a mandated set of PIs;
// the profile nests exactly one level deep.
var (
	GroupFileID     = &Parameter{ID: 9, Name: "PGI_09 file identification", Group: true}
	GroupRecord     = &Parameter{ID: 30, Name: "PGI_30 record description", Group: true}
	GroupAllocation = &Parameter{ID: 40, Name: "PGI_40 space allocation", Group: true}
	GroupCreation   = &Parameter{ID: 50, Name: "PGI_50 file creation", Group: true}
)

var catalog = func() map[byte]*Parameter {
	all := []*Parameter{
		Diag, Requester, Server, Password, Version, SyncOptions,
		FileType, FileName, TransferID, Attributes, Priority,
		RestartPoint, EndCode, SyncNumber, Compression, AccessType,
		Resync, MaxEntitySize, TransferLabel, RecordFormat, RecordLength,
		AllocationUnit, ReservationSize, CreationDate, Message,
		GroupFileID, GroupRecord, GroupAllocation, GroupCreation,
	}
	m := make(map[byte]*Parameter, len(all))
	for _, p := range all {
		m[p.ID] = p
	}
	return m
}()

// Lookup resolves a wire identifier to its catalog entry.
func Lookup(id byte) (*Parameter, error) {
	p, ok := catalog[id]
	if !ok {
		return nil, &UnknownParameterError{ID: id}
	}
	return p, nil
}
