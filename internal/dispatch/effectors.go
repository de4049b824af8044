package dispatch

import (
	"context"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/gateway"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// The effector interfaces are the host-side collaborators that actually
// carry operations out. The dispatcher gates and logs; it never touches
// the disk, audio device, or network itself.

// FileInfo is the stat result surface the dispatcher forwards.
type FileInfo struct {
	Size           uint64 `json:"size"`
	Dir            bool   `json:"dir"`
	ModifiedMicros uint64 `json:"modified_micros"`
}

// Filesystem performs file operations on behalf of agents.
type Filesystem interface {
	List(ctx context.Context, path string) ([]string, error)
	Read(ctx context.Context, req protocol.ReadRequest) ([]byte, error)
	Write(ctx context.Context, req protocol.WriteRequest) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	Create(ctx context.Context, path string, kind protocol.CreateKind) error
	Delete(ctx context.Context, path string) error
}

// Audio controls playback and capture.
type Audio interface {
	Play(ctx context.Context, track uint32) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, level byte) error
	Record(ctx context.Context, durationMillis uint32) ([]byte, error)
}

// Documents manages document handles.
type Documents interface {
	New(ctx context.Context, title string) (uint32, error)
	Edit(ctx context.Context, ref uint32, content string) error
	Save(ctx context.Context, ref uint32, path string) error
}

// Capture takes screenshots.
type Capture interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// ModelRouter serves model requests, normally the cloud gateway.
type ModelRouter interface {
	Route(ctx context.Context, agent protocol.AgentID, req gateway.Request) (*gateway.Response, error)
}

// Presenter receives operation output destined for the agent. Delivery is
// outside the dispatcher's contract; a nil presenter drops output.
type Presenter interface {
	Deliver(agent protocol.AgentID, opcode protocol.Opcode, data []byte)
}
