package fpdu

import (
	"time"

	"github.com/sirosfoundation/go-pesit/pkg/param"
)

// Protocol symbol values for PI_31 record format and PI_22 access type.
const (
	RecordFixed    = 0
	RecordVariable = 1

	AccessWrite = 0
	AccessRead  = 1
	AccessMixed = 2
)

// Hors-SIT profile defaults applied by the builders.
const (
	DefaultVersion       = 2
	DefaultFileType      = 0 // binary
	DefaultMaxEntitySize = 4096
	maxFileSizeKB        = 0xffffffff
)

// ConnectBuilder assembles a CONNECT FPDU. Builders are single-use:
// construct, apply options, call Build once.
type ConnectBuilder struct {
	requester  string
	server     string
	password   string
	accessType uint64
	syncKB     uint16
	syncWindow uint8
	syncPoints bool
	resync     bool
}

// ConnectOption configures a ConnectBuilder.
type ConnectOption func(*ConnectBuilder)

// NewConnect creates a CONNECT builder with the given options.
func NewConnect(opts ...ConnectOption) *ConnectBuilder {
	b := &ConnectBuilder{accessType: AccessWrite}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithRequester sets the PI_03 requester name.
func WithRequester(name string) ConnectOption {
	return func(b *ConnectBuilder) { b.requester = name }
}

// WithServer sets the PI_04 server name.
func WithServer(name string) ConnectOption {
	return func(b *ConnectBuilder) { b.server = name }
}

// WithPassword sets the PI_05 access password.
func WithPassword(pw string) ConnectOption {
	return func(b *ConnectBuilder) { b.password = pw }
}

// WithAccessType sets the PI_22 access type.
func WithAccessType(t uint64) ConnectOption {
	return func(b *ConnectBuilder) { b.accessType = t }
}

// WithSyncPoints enables sync points, adding PI_07 with the given
// interval (kilobytes) and acknowledgement window. Omitting PI_07
// signals the peer that the capability is unavailable; the peer must
// treat that as a negotiation response, not an error.
func WithSyncPoints(intervalKB uint16, window uint8) ConnectOption {
	return func(b *ConnectBuilder) {
		b.syncPoints = true
		b.syncKB = intervalKB
		b.syncWindow = window
	}
}

// WithResync enables the PI_23 resync capability flag.
func WithResync() ConnectOption {
	return func(b *ConnectBuilder) { b.resync = true }
}

// Build finalizes the CONNECT. connID is the local connection id placed
// in id_src; id_dst is zero until the peer assigns its own id in
// ACONNECT. PI_07 is emitted before PI_22: the ordering is a wire-level
// requirement of some peers.
func (b *ConnectBuilder) Build(connID byte) (*FPDU, error) {
	f := &FPDU{Verb: VerbConnect, IDDst: 0, IDSrc: connID}

	add := newParamList(f)
	add.string(param.Requester, b.requester)
	add.string(param.Server, b.server)
	if b.password != "" {
		add.string(param.Password, b.password)
	}
	add.int(param.Version, DefaultVersion)
	if b.syncPoints {
		v, err := param.SyncPointOptions(b.syncKB, b.syncWindow)
		add.value(v, err)
	}
	add.int(param.AccessType, b.accessType)
	if b.resync {
		add.int(param.Resync, 1)
	}
	return add.finish()
}

// CreateBuilder assembles a CREATE FPDU announcing an outbound file.
type CreateBuilder struct {
	fileName      string
	fileType      uint64
	transferID    uint64
	recordFormat  uint64
	recordLength  uint64
	maxEntitySize uint64
	fileSizeKB    uint64
	hasFileSize   bool
	restartPoint  uint64
	hasRestart    bool
	priority      uint64
	hasPriority   bool
	created       time.Time
}

// CreateOption configures a CreateBuilder.
type CreateOption func(*CreateBuilder)

// NewCreate creates a CREATE builder with protocol defaults: file type
// 0 (binary), variable record format, 4096 byte max entity size,
// creation date now.
func NewCreate(opts ...CreateOption) *CreateBuilder {
	b := &CreateBuilder{
		fileType:      DefaultFileType,
		recordFormat:  RecordVariable,
		maxEntitySize: DefaultMaxEntitySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithFileName sets the PI_12 file name.
func WithFileName(name string) CreateOption {
	return func(b *CreateBuilder) { b.fileName = name }
}

// WithFileType sets the PI_11 file type.
func WithFileType(t uint64) CreateOption {
	return func(b *CreateBuilder) { b.fileType = t }
}

// WithTransferID sets the PI_13 transfer id.
func WithTransferID(id uint64) CreateOption {
	return func(b *CreateBuilder) { b.transferID = id }
}

// WithRecordFormat sets the PI_31 record format symbol.
func WithRecordFormat(f uint64) CreateOption {
	return func(b *CreateBuilder) { b.recordFormat = f }
}

// WithRecordLength sets the PI_32 record length.
func WithRecordLength(n uint64) CreateOption {
	return func(b *CreateBuilder) { b.recordLength = n }
}

// WithMaxEntitySize sets the PI_25 maximum entity size.
func WithMaxEntitySize(n uint64) CreateOption {
	return func(b *CreateBuilder) { b.maxEntitySize = n }
}

// WithFileSize sets the PI_42 reservation size from a byte count. The
// protocol expresses file size in kilobytes; very large files saturate
// to the maximum representable value instead of overflowing.
func WithFileSize(bytes uint64) CreateOption {
	return func(b *CreateBuilder) {
		kb := (bytes + 1023) / 1024
		if kb > maxFileSizeKB {
			kb = maxFileSizeKB
		}
		b.fileSizeKB = kb
		b.hasFileSize = true
	}
}

// WithRestartPoint sets the PI_18 restart point when resuming an
// interrupted transfer.
func WithRestartPoint(sync uint64) CreateOption {
	return func(b *CreateBuilder) {
		b.restartPoint = sync
		b.hasRestart = true
	}
}

// WithPriority sets the PI_17 transfer priority.
func WithPriority(p uint64) CreateOption {
	return func(b *CreateBuilder) {
		b.priority = p
		b.hasPriority = true
	}
}

// WithCreationDate overrides the PI_51 creation date.
func WithCreationDate(t time.Time) CreateOption {
	return func(b *CreateBuilder) { b.created = t }
}

// Build finalizes the CREATE addressed to the peer connection.
func (b *CreateBuilder) Build(peerID byte) (*FPDU, error) {
	f := &FPDU{Verb: VerbCreate, IDDst: peerID, IDSrc: 0}

	add := newParamList(f)
	add.int(param.TransferID, b.transferID)

	ft, errFT := param.Int(param.FileType, b.fileType)
	fn, errFN := param.String(param.FileName, b.fileName)
	add.group(param.GroupFileID, []param.Value{ft, fn}, errFT, errFN)

	if b.hasPriority {
		add.int(param.Priority, b.priority)
	}
	if b.hasRestart {
		add.int(param.RestartPoint, b.restartPoint)
	}
	add.int(param.MaxEntitySize, b.maxEntitySize)

	rf, errRF := param.Int(param.RecordFormat, b.recordFormat)
	rl, errRL := param.Int(param.RecordLength, b.recordLength)
	add.group(param.GroupRecord, []param.Value{rf, rl}, errRF, errRL)

	if b.hasFileSize {
		au, errAU := param.Int(param.AllocationUnit, 1) // kilobytes
		rs, errRS := param.Int(param.ReservationSize, b.fileSizeKB)
		add.group(param.GroupAllocation, []param.Value{au, rs}, errAU, errRS)
	}

	created := b.created
	if created.IsZero() {
		created = time.Now()
	}
	cd, errCD := param.Date(param.CreationDate, created)
	add.group(param.GroupCreation, []param.Value{cd}, errCD)

	return add.finish()
}

// SelectBuilder assembles a SELECT FPDU requesting an inbound file.
type SelectBuilder struct {
	fileName     string
	fileType     uint64
	transferID   uint64
	attributes   byte
	restartPoint uint64
	hasRestart   bool
}

// SelectOption configures a SelectBuilder.
type SelectOption func(*SelectBuilder)

// NewSelect creates a SELECT builder.
func NewSelect(opts ...SelectOption) *SelectBuilder {
	b := &SelectBuilder{fileType: DefaultFileType}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithSelectFileName sets the PI_12 file name to select.
func WithSelectFileName(name string) SelectOption {
	return func(b *SelectBuilder) { b.fileName = name }
}

// WithSelectFileType sets the PI_11 file type to select.
func WithSelectFileType(t uint64) SelectOption {
	return func(b *SelectBuilder) { b.fileType = t }
}

// WithSelectTransferID sets the PI_13 transfer id.
func WithSelectTransferID(id uint64) SelectOption {
	return func(b *SelectBuilder) { b.transferID = id }
}

// WithSelectAttributes sets the PI_14 requested attributes bitmask.
func WithSelectAttributes(mask byte) SelectOption {
	return func(b *SelectBuilder) { b.attributes = mask }
}

// WithSelectRestartPoint sets the PI_18 restart point when resuming.
func WithSelectRestartPoint(sync uint64) SelectOption {
	return func(b *SelectBuilder) {
		b.restartPoint = sync
		b.hasRestart = true
	}
}

// Build finalizes the SELECT addressed to the peer connection.
func (b *SelectBuilder) Build(peerID byte) (*FPDU, error) {
	f := &FPDU{Verb: VerbSelect, IDDst: peerID, IDSrc: 0}

	add := newParamList(f)
	add.int(param.TransferID, b.transferID)

	ft, errFT := param.Int(param.FileType, b.fileType)
	fn, errFN := param.String(param.FileName, b.fileName)
	add.group(param.GroupFileID, []param.Value{ft, fn}, errFT, errFN)

	if b.attributes != 0 {
		add.bytes(param.Attributes, []byte{b.attributes})
	}
	if b.hasRestart {
		add.int(param.RestartPoint, b.restartPoint)
	}
	return add.finish()
}

// paramList accumulates parameters and their construction errors so a
// builder can report the first failure from Build.
type paramList struct {
	f    *FPDU
	errs []error
}

func newParamList(f *FPDU) *paramList { return &paramList{f: f} }

func (l *paramList) value(v param.Value, err error) {
	if err != nil {
		l.errs = append(l.errs, err)
		return
	}
	l.f.Params = append(l.f.Params, v)
}

func (l *paramList) int(p *param.Parameter, v uint64) {
	l.value(param.Int(p, v))
}

func (l *paramList) string(p *param.Parameter, s string) {
	l.value(param.String(p, s))
}

func (l *paramList) bytes(p *param.Parameter, b []byte) {
	l.value(param.Bytes(p, b))
}

func (l *paramList) group(p *param.Parameter, children []param.Value, errs ...error) {
	for _, err := range errs {
		if err != nil {
			l.errs = append(l.errs, err)
			return
		}
	}
	l.value(param.Group(p, children...))
}

func (l *paramList) finish() (*FPDU, error) {
	if len(l.errs) > 0 {
		return nil, l.errs[0]
	}
	return l.f, nil
}
