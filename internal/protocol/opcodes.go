package protocol

// Opcode identifies the requested operation in a wire frame.
type Opcode byte

// Opcode table. The range is flat and extensible; additions go at the end.
const (
	OpFsList       Opcode = 0x30
	OpFsRead       Opcode = 0x31
	OpFsWrite      Opcode = 0x32
	OpFsStat       Opcode = 0x33
	OpFsCreate     Opcode = 0x34
	OpFsDelete     Opcode = 0x35
	OpAudioPlay    Opcode = 0x36
	OpAudioStop    Opcode = 0x37
	OpAudioVolume  Opcode = 0x38
	OpDocNew       Opcode = 0x39
	OpDocEdit      Opcode = 0x3A
	OpDocSave      Opcode = 0x3B
	OpScreenshot   Opcode = 0x3C
	OpAudioRecord  Opcode = 0x3D
	OpModelRequest Opcode = 0x3E
)

var opcodeNames = map[Opcode]string{
	OpFsList:       "fs_list",
	OpFsRead:       "fs_read",
	OpFsWrite:      "fs_write",
	OpFsStat:       "fs_stat",
	OpFsCreate:     "fs_create",
	OpFsDelete:     "fs_delete",
	OpAudioPlay:    "audio_play",
	OpAudioStop:    "audio_stop",
	OpAudioVolume:  "audio_volume",
	OpDocNew:       "doc_new",
	OpDocEdit:      "doc_edit",
	OpDocSave:      "doc_save",
	OpScreenshot:   "screenshot",
	OpAudioRecord:  "audio_record",
	OpModelRequest: "model_request",
}

// String returns the lowercase wire name of the opcode.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "unknown"
}

// AgentID identifies an agent. It is carved from the top 16 bits of the
// 64-bit authorization token; the remaining bits belong to the external
// authentication layer and are never interpreted here. Zero is reserved.
type AgentID uint16

// AgentFromToken extracts the agent identity from an authorization token.
func AgentFromToken(token uint64) AgentID {
	return AgentID(token >> 48)
}
