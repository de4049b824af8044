package protocol

// Per-opcode payload schemas. Every decoder consumes exactly the fields it
// needs and fails with ErrBadFrame on truncation or malformed text. Trailing
// bytes after the last required field are tolerated only where the schema
// declares an optional suffix.

// CreateKind selects what FS_CREATE makes on disk.
type CreateKind byte

const (
	CreateFile CreateKind = 0
	CreateDir  CreateKind = 1
)

// PathRequest covers FS_LIST, FS_STAT and FS_DELETE: a single path field.
type PathRequest struct {
	Path string
}

// DecodePathRequest parses a bare path payload.
func DecodePathRequest(payload []byte) (PathRequest, error) {
	r := newReader(payload)
	path, err := r.stringTLV()
	if err != nil {
		return PathRequest{}, err
	}
	return PathRequest{Path: path}, nil
}

// Encode serializes the request to wire form.
func (p PathRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Path)
	return w.buf
}

// ReadRequest is FS_READ. The offset/length pair is optional; when absent
// the whole file is read.
type ReadRequest struct {
	Path   string
	Ranged bool
	Offset uint64
	Length uint32
}

// DecodeReadRequest parses an FS_READ payload. A 12-byte suffix after the
// path is interpreted as [offset u64][length u32]; any other trailing bytes
// are a bad frame.
func DecodeReadRequest(payload []byte) (ReadRequest, error) {
	r := newReader(payload)
	path, err := r.stringTLV()
	if err != nil {
		return ReadRequest{}, err
	}
	req := ReadRequest{Path: path}
	switch r.remaining() {
	case 0:
	case 12:
		req.Ranged = true
		req.Offset, _ = r.u64()
		req.Length, _ = r.u32()
	default:
		return ReadRequest{}, ErrBadFrame
	}
	return req, nil
}

// Encode serializes the request to wire form.
func (p ReadRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Path)
	if p.Ranged {
		w.u64(p.Offset)
		w.u32(p.Length)
	}
	return w.buf
}

// WriteRequest is FS_WRITE: path, byte offset, then the data as the rest of
// the payload.
type WriteRequest struct {
	Path   string
	Offset uint64
	Data   []byte
}

// DecodeWriteRequest parses an FS_WRITE payload.
func DecodeWriteRequest(payload []byte) (WriteRequest, error) {
	r := newReader(payload)
	path, err := r.stringTLV()
	if err != nil {
		return WriteRequest{}, err
	}
	offset, err := r.u64()
	if err != nil {
		return WriteRequest{}, err
	}
	return WriteRequest{Path: path, Offset: offset, Data: r.rest()}, nil
}

// Encode serializes the request to wire form.
func (p WriteRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Path)
	w.u64(p.Offset)
	w.buf = append(w.buf, p.Data...)
	return w.buf
}

// CreateRequest is FS_CREATE: path plus an optional kind byte. Absent kind
// means a regular file.
type CreateRequest struct {
	Path string
	Kind CreateKind
}

// DecodeCreateRequest parses an FS_CREATE payload.
func DecodeCreateRequest(payload []byte) (CreateRequest, error) {
	r := newReader(payload)
	path, err := r.stringTLV()
	if err != nil {
		return CreateRequest{}, err
	}
	req := CreateRequest{Path: path, Kind: CreateFile}
	if r.remaining() >= 1 {
		k, _ := r.u8()
		if k > 1 {
			return CreateRequest{}, ErrBadFrame
		}
		req.Kind = CreateKind(k)
	}
	return req, nil
}

// Encode serializes the request to wire form. The kind byte is always
// written; decoders treat it as optional.
func (p CreateRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Path)
	w.u8(byte(p.Kind))
	return w.buf
}

// PlayRequest is AUDIO_PLAY: a 32-bit track identifier.
type PlayRequest struct {
	Track uint32
}

// DecodePlayRequest parses an AUDIO_PLAY payload.
func DecodePlayRequest(payload []byte) (PlayRequest, error) {
	r := newReader(payload)
	track, err := r.u32()
	if err != nil {
		return PlayRequest{}, err
	}
	return PlayRequest{Track: track}, nil
}

// Encode serializes the request to wire form.
func (p PlayRequest) Encode() []byte {
	var w writer
	w.u32(p.Track)
	return w.buf
}

// VolumeRequest is AUDIO_VOLUME: a single level byte in 0..100.
type VolumeRequest struct {
	Level byte
}

// DecodeVolumeRequest parses an AUDIO_VOLUME payload. Levels above 100 are
// malformed rather than clamped.
func DecodeVolumeRequest(payload []byte) (VolumeRequest, error) {
	r := newReader(payload)
	level, err := r.u8()
	if err != nil {
		return VolumeRequest{}, err
	}
	if level > 100 {
		return VolumeRequest{}, ErrBadFrame
	}
	return VolumeRequest{Level: level}, nil
}

// Encode serializes the request to wire form.
func (p VolumeRequest) Encode() []byte {
	var w writer
	w.u8(p.Level)
	return w.buf
}

// DocNewRequest is DOC_NEW: the document title.
type DocNewRequest struct {
	Title string
}

// DecodeDocNewRequest parses a DOC_NEW payload.
func DecodeDocNewRequest(payload []byte) (DocNewRequest, error) {
	r := newReader(payload)
	title, err := r.stringTLV()
	if err != nil {
		return DocNewRequest{}, err
	}
	return DocNewRequest{Title: title}, nil
}

// Encode serializes the request to wire form.
func (p DocNewRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Title)
	return w.buf
}

// DocEditRequest is DOC_EDIT: document handle plus replacement content.
type DocEditRequest struct {
	DocRef  uint32
	Content string
}

// DecodeDocEditRequest parses a DOC_EDIT payload.
func DecodeDocEditRequest(payload []byte) (DocEditRequest, error) {
	r := newReader(payload)
	ref, err := r.u32()
	if err != nil {
		return DocEditRequest{}, err
	}
	content, err := r.stringTLV()
	if err != nil {
		return DocEditRequest{}, err
	}
	return DocEditRequest{DocRef: ref, Content: content}, nil
}

// Encode serializes the request to wire form.
func (p DocEditRequest) Encode() []byte {
	var w writer
	w.u32(p.DocRef)
	w.stringTLV(p.Content)
	return w.buf
}

// DocSaveRequest is DOC_SAVE: document handle plus destination path.
type DocSaveRequest struct {
	DocRef uint32
	Path   string
}

// DecodeDocSaveRequest parses a DOC_SAVE payload.
func DecodeDocSaveRequest(payload []byte) (DocSaveRequest, error) {
	r := newReader(payload)
	ref, err := r.u32()
	if err != nil {
		return DocSaveRequest{}, err
	}
	path, err := r.stringTLV()
	if err != nil {
		return DocSaveRequest{}, err
	}
	return DocSaveRequest{DocRef: ref, Path: path}, nil
}

// Encode serializes the request to wire form.
func (p DocSaveRequest) Encode() []byte {
	var w writer
	w.u32(p.DocRef)
	w.stringTLV(p.Path)
	return w.buf
}

// DefaultRecordMillis is the capture duration applied when AUDIO_RECORD
// carries no explicit duration.
const DefaultRecordMillis uint32 = 5000

// RecordRequest is AUDIO_RECORD. Duration is always in milliseconds after
// decoding, whichever encoding the payload used.
type RecordRequest struct {
	DurationMillis uint32
}

// DecodeRecordRequest parses an AUDIO_RECORD payload. An empty payload
// defaults the duration, a u32 is taken as milliseconds, and a legacy
// 2-byte form is whole seconds.
func DecodeRecordRequest(payload []byte) (RecordRequest, error) {
	switch len(payload) {
	case 0:
		return RecordRequest{DurationMillis: DefaultRecordMillis}, nil
	case 2:
		r := newReader(payload)
		secs, _ := r.u16()
		return RecordRequest{DurationMillis: uint32(secs) * 1000}, nil
	case 4:
		r := newReader(payload)
		ms, _ := r.u32()
		return RecordRequest{DurationMillis: ms}, nil
	default:
		return RecordRequest{}, ErrBadFrame
	}
}

// Encode serializes the request to the u32 milliseconds form.
func (p RecordRequest) Encode() []byte {
	var w writer
	w.u32(p.DurationMillis)
	return w.buf
}

// DefaultMaxTokens is the completion budget applied when MODEL_REQUEST
// carries no explicit limit.
const DefaultMaxTokens uint32 = 1000

// ModelRequest is MODEL_REQUEST: the prompt plus an optional token budget.
type ModelRequest struct {
	Prompt    string
	MaxTokens uint32
}

// DecodeModelRequest parses a MODEL_REQUEST payload. A 4-byte suffix after
// the prompt is the max token budget; any other trailing bytes are a bad
// frame.
func DecodeModelRequest(payload []byte) (ModelRequest, error) {
	r := newReader(payload)
	prompt, err := r.stringTLV()
	if err != nil {
		return ModelRequest{}, err
	}
	req := ModelRequest{Prompt: prompt, MaxTokens: DefaultMaxTokens}
	switch r.remaining() {
	case 0:
	case 4:
		req.MaxTokens, _ = r.u32()
	default:
		return ModelRequest{}, ErrBadFrame
	}
	return req, nil
}

// Encode serializes the request to wire form.
func (p ModelRequest) Encode() []byte {
	var w writer
	w.stringTLV(p.Prompt)
	w.u32(p.MaxTokens)
	return w.buf
}
