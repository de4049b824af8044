package policy

import (
	"fmt"
	"strings"
)

// Capability names a class of host operations an agent may be granted.
// The set is closed; unknown names are rejected at the admin boundary.
type Capability string

const (
	CapFsBasic      Capability = "fs_basic"
	CapFsAdmin      Capability = "fs_admin"
	CapAudioControl Capability = "audio_control"
	CapDocBasic     Capability = "doc_basic"
	CapScreenshot   Capability = "screenshot"
	CapCapture      Capability = "capture"
	CapModelRequest Capability = "model_request"
	CapAdmin        Capability = "admin"
)

var knownCapabilities = map[Capability]bool{
	CapFsBasic:      true,
	CapFsAdmin:      true,
	CapAudioControl: true,
	CapDocBasic:     true,
	CapScreenshot:   true,
	CapCapture:      true,
	CapModelRequest: true,
	CapAdmin:        true,
}

// ParseCapability validates a capability name from config or the admin
// surface.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !knownCapabilities[c] {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// ResourceKind discriminates the Resource union.
type ResourceKind byte

const (
	ResourceNone ResourceKind = iota
	ResourcePath
	ResourceFileSize
	ResourceTrack
	ResourceDoc
)

// Resource is the concrete object an operation touches. Kind selects which
// fields are meaningful.
type Resource struct {
	Kind ResourceKind
	Path string
	Size uint64
	ID   uint32
}

// NoResource is for operations with no addressable object.
func NoResource() Resource {
	return Resource{Kind: ResourceNone}
}

// PathResource addresses a filesystem path.
func PathResource(path string) Resource {
	return Resource{Kind: ResourcePath, Path: path}
}

// FileSizeResource addresses a path together with the byte count being
// written to it.
func FileSizeResource(path string, size uint64) Resource {
	return Resource{Kind: ResourceFileSize, Path: path, Size: size}
}

// TrackResource addresses an audio track by reference.
func TrackResource(id uint32) Resource {
	return Resource{Kind: ResourceTrack, ID: id}
}

// DocResource addresses a document by reference.
func DocResource(id uint32) Resource {
	return Resource{Kind: ResourceDoc, ID: id}
}

// Scope narrows what a capability reaches. Zero-valued fields are
// unrestricted.
type Scope struct {
	PathPrefix  string `json:"path_prefix,omitempty"`
	MaxFileSize uint64 `json:"max_file_size,omitempty"`
	MinID       uint32 `json:"min_id,omitempty"`
	MaxID       uint32 `json:"max_id,omitempty"`
}

// permits reports whether the resource falls inside the scope.
func (s Scope) permits(res Resource) (bool, string) {
	switch res.Kind {
	case ResourcePath, ResourceFileSize:
		if s.PathPrefix != "" && !strings.HasPrefix(res.Path, s.PathPrefix) {
			return false, fmt.Sprintf("path %q outside scope %q", res.Path, s.PathPrefix)
		}
		if res.Kind == ResourceFileSize && s.MaxFileSize > 0 && res.Size > s.MaxFileSize {
			return false, fmt.Sprintf("size %d exceeds limit %d", res.Size, s.MaxFileSize)
		}
	case ResourceTrack, ResourceDoc:
		if s.MaxID > 0 && (res.ID < s.MinID || res.ID > s.MaxID) {
			return false, fmt.Sprintf("ref %d outside range [%d, %d]", res.ID, s.MinID, s.MaxID)
		}
	}
	return true, ""
}

// Decision is the outcome of a policy check. Reason is set only on denial.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the permissive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny carries the reason the check failed.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
