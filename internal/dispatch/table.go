package dispatch

import (
	"context"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/gateway"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/policy"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
)

// buildTable binds every supported opcode to its capability, payload
// decoder, and effector call. File creation and deletion sit behind the
// elevated filesystem capability; the remaining file opcodes need only the
// basic one.
func buildTable() map[protocol.Opcode]handler {
	return map[protocol.Opcode]handler{
		protocol.OpFsList: {
			capability: policy.CapFsBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodePathRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.PathResource(req.Path),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						names, err := d.opts.Filesystem.List(ctx, req.Path)
						if err != nil {
							return nil, err
						}
						return sonic.Marshal(names)
					},
				}, nil
			},
		},
		protocol.OpFsRead: {
			capability: policy.CapFsBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeReadRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.PathResource(req.Path),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return d.opts.Filesystem.Read(ctx, req)
					},
				}, nil
			},
		},
		protocol.OpFsWrite: {
			capability: policy.CapFsBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeWriteRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.FileSizeResource(req.Path, uint64(len(req.Data))),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Filesystem.Write(ctx, req)
					},
				}, nil
			},
		},
		protocol.OpFsStat: {
			capability: policy.CapFsBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodePathRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.PathResource(req.Path),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						info, err := d.opts.Filesystem.Stat(ctx, req.Path)
						if err != nil {
							return nil, err
						}
						return sonic.Marshal(info)
					},
				}, nil
			},
		},
		protocol.OpFsCreate: {
			capability: policy.CapFsAdmin,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeCreateRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.PathResource(req.Path),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Filesystem.Create(ctx, req.Path, req.Kind)
					},
				}, nil
			},
		},
		protocol.OpFsDelete: {
			capability: policy.CapFsAdmin,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodePathRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.PathResource(req.Path),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Filesystem.Delete(ctx, req.Path)
					},
				}, nil
			},
		},
		protocol.OpAudioPlay: {
			capability: policy.CapAudioControl,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodePlayRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.TrackResource(req.Track),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Audio.Play(ctx, req.Track)
					},
				}, nil
			},
		},
		protocol.OpAudioStop: {
			capability: policy.CapAudioControl,
			decode: func(d *Dispatcher, _ []byte) (invocation, error) {
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Audio.Stop(ctx)
					},
				}, nil
			},
		},
		protocol.OpAudioVolume: {
			capability: policy.CapAudioControl,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeVolumeRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Audio.SetVolume(ctx, req.Level)
					},
				}, nil
			},
		},
		protocol.OpDocNew: {
			capability: policy.CapDocBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeDocNewRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						ref, err := d.opts.Documents.New(ctx, req.Title)
						if err != nil {
							return nil, err
						}
						return sonic.Marshal(map[string]uint32{"doc_ref": ref})
					},
				}, nil
			},
		},
		protocol.OpDocEdit: {
			capability: policy.CapDocBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeDocEditRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.DocResource(req.DocRef),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Documents.Edit(ctx, req.DocRef, req.Content)
					},
				}, nil
			},
		},
		protocol.OpDocSave: {
			capability: policy.CapDocBasic,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeDocSaveRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.DocResource(req.DocRef),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return nil, d.opts.Documents.Save(ctx, req.DocRef, req.Path)
					},
				}, nil
			},
		},
		protocol.OpScreenshot: {
			capability: policy.CapScreenshot,
			decode: func(d *Dispatcher, _ []byte) (invocation, error) {
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return d.opts.Capture.Screenshot(ctx)
					},
				}, nil
			},
		},
		protocol.OpAudioRecord: {
			capability: policy.CapCapture,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeRecordRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, _ protocol.AgentID) ([]byte, error) {
						return d.opts.Audio.Record(ctx, req.DurationMillis)
					},
				}, nil
			},
		},
		protocol.OpModelRequest: {
			capability: policy.CapModelRequest,
			decode: func(d *Dispatcher, payload []byte) (invocation, error) {
				req, err := protocol.DecodeModelRequest(payload)
				if err != nil {
					return invocation{}, err
				}
				return invocation{
					resource: policy.NoResource(),
					run: func(ctx context.Context, agent protocol.AgentID) ([]byte, error) {
						resp, err := d.opts.Models.Route(ctx, agent, gateway.Request{
							Prompt:    req.Prompt,
							MaxTokens: req.MaxTokens,
						})
						if err != nil {
							return nil, err
						}
						return sonic.Marshal(resp)
					},
				}, nil
			},
		},
	}
}
