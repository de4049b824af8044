package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
)

func newTestFS(t *testing.T) *LocalFS {
	t.Helper()
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestLocalFS_WriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	err := fs.Write(ctx, protocol.WriteRequest{Path: "/notes.txt", Data: []byte("hello host")})
	require.NoError(t, err)

	data, err := fs.Read(ctx, protocol.ReadRequest{Path: "/notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello host"), data)
}

func TestLocalFS_RangedRead(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, protocol.WriteRequest{Path: "/r.bin", Data: []byte("0123456789")}))

	data, err := fs.Read(ctx, protocol.ReadRequest{Path: "/r.bin", Ranged: true, Offset: 2, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), data)

	// Range past EOF returns the available tail.
	data, err = fs.Read(ctx, protocol.ReadRequest{Path: "/r.bin", Ranged: true, Offset: 8, Length: 10})
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), data)
}

func TestLocalFS_ListMarksDirectories(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "/sub", protocol.CreateDir))
	require.NoError(t, fs.Write(ctx, protocol.WriteRequest{Path: "/a.txt", Data: []byte("x")}))

	names, err := fs.List(ctx, "/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/"}, names)
}

func TestLocalFS_Stat(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, protocol.WriteRequest{Path: "/s.txt", Data: []byte("12345")}))

	info, err := fs.Stat(ctx, "/s.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.Size)
	assert.False(t, info.Dir)
	assert.NotZero(t, info.ModifiedMicros)
}

func TestLocalFS_CreateAndDelete(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "/f.txt", protocol.CreateFile))
	// Exclusive create refuses to clobber.
	assert.Error(t, fs.Create(ctx, "/f.txt", protocol.CreateFile))

	require.NoError(t, fs.Delete(ctx, "/f.txt"))
	_, err := fs.Stat(ctx, "/f.txt")
	assert.Error(t, err)
}

func TestLocalFS_RejectsEscape(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	// Cleaning strips the traversal, so the read stays inside the root
	// and simply misses.
	_, err := fs.Read(ctx, protocol.ReadRequest{Path: "/../../etc/passwd"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPathEscape)

	_, err = fs.Stat(ctx, "/../outside")
	assert.Error(t, err)
}

func TestDocStore_Lifecycle(t *testing.T) {
	fs := newTestFS(t)
	store := NewDocStore(fs)
	ctx := context.Background()

	ref, err := store.New(ctx, "draft")
	require.NoError(t, err)
	require.NoError(t, store.Edit(ctx, ref, "final text"))
	require.NoError(t, store.Save(ctx, ref, "/draft.txt"))

	data, err := fs.Read(ctx, protocol.ReadRequest{Path: "/draft.txt"})
	require.NoError(t, err)
	assert.Equal(t, "final text", string(data))

	// Saved documents are closed.
	assert.ErrorIs(t, store.Edit(ctx, ref, "again"), ErrUnknownDoc)
	assert.Equal(t, 0, store.Open())
}

func TestDocStore_UnknownRef(t *testing.T) {
	store := NewDocStore(newTestFS(t))
	assert.ErrorIs(t, store.Edit(context.Background(), 42, "x"), ErrUnknownDoc)
	assert.ErrorIs(t, store.Save(context.Background(), 42, "/x"), ErrUnknownDoc)
}

func TestMixer_State(t *testing.T) {
	m := NewMixer()
	ctx := context.Background()

	require.NoError(t, m.Play(ctx, 7))
	playing, track := m.Playing()
	assert.True(t, playing)
	assert.Equal(t, uint32(7), track)

	require.NoError(t, m.SetVolume(ctx, 80))
	assert.Equal(t, byte(80), m.Volume())

	require.NoError(t, m.Stop(ctx))
	playing, _ = m.Playing()
	assert.False(t, playing)
}

func TestMixer_RecordLength(t *testing.T) {
	m := NewMixer()
	data, err := m.Record(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, data, 100*16*2)
}

func TestGrabber_Unconfigured(t *testing.T) {
	g := NewGrabber(nil)
	_, err := g.Screenshot(context.Background())
	assert.ErrorIs(t, err, ErrNoGrabber)
}

func TestExecManager_ReportsExitCode(t *testing.T) {
	m := NewExecManager("sh", "-c", "exit 3")

	type report struct {
		pid  supervisor.PID
		code int
	}
	reports := make(chan report, 1)
	m.BindExit(func(ctx context.Context, pid supervisor.PID, code int) {
		reports <- report{pid, code}
	})

	pid, err := m.Start(context.Background(), "agent-a")
	require.NoError(t, err)

	select {
	case r := <-reports:
		assert.Equal(t, pid, r.pid)
		assert.Equal(t, 3, r.code)
	case <-time.After(5 * time.Second):
		t.Fatal("exit never reported")
	}
	assert.Equal(t, 0, m.Count())
}

func TestExecManager_StopSuppressesReport(t *testing.T) {
	m := NewExecManager("sh", "-c", "sleep 60")

	reports := make(chan int, 1)
	m.BindExit(func(ctx context.Context, pid supervisor.PID, code int) {
		reports <- code
	})

	pid, err := m.Start(context.Background(), "agent-b")
	require.NoError(t, err)
	require.NoError(t, m.Stop(context.Background(), pid))

	select {
	case code := <-reports:
		t.Fatalf("deliberate stop reported as exit %d", code)
	case <-time.After(200 * time.Millisecond):
	}
	assert.ErrorIs(t, m.Stop(context.Background(), pid), ErrUnknownProcess)
}
