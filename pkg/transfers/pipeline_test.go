package transfers

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevmo314/go-uvchost/pkg/host"
	"github.com/kevmo314/go-uvchost/pkg/host/hosttest"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

type frame struct {
	data []byte
	err  error
}

func payload(fid, eof, errBit bool, data ...byte) []byte {
	var bits byte = headerEndOfHeader
	if fid {
		bits |= headerFrameID
	}
	if eof {
		bits |= headerEndOfFrame
	}
	if errBit {
		bits |= headerError
	}
	return append([]byte{2, bits}, data...)
}

// startPipeline runs a pipeline whose notify hands each frame to the
// returned channel and queues a fresh destination of dstSize bytes.
func startPipeline(t *testing.T, dstSize int) (*Pipeline, *hosttest.Pipe, <-chan frame) {
	t.Helper()
	p := NewPipeline("test", NumBuffers, 64, zerolog.Nop())
	pipe := &hosttest.Pipe{Endpoint: host.Endpoint{Address: 0x81, Type: host.TransferTypeIsochronous, PacketSize: 64}}
	frames := make(chan frame, 64)
	dst := make([]byte, dstSize)
	require.NoError(t, p.Start(pipe, dst, func(n int, err error) {
		f := frame{err: err}
		if err == nil {
			f.data = append([]byte(nil), dst[:n]...)
			dst = make([]byte, dstSize)
			p.SetBuf(dst)
		}
		frames <- f
	}))
	t.Cleanup(func() { _ = p.Cancel() })
	require.Equal(t, NumBuffers, pipe.Pending())
	return p, pipe, frames
}

// feed completes the oldest read with each payload and waits until the
// worker has resubmitted it.
func feed(t *testing.T, pipe *hosttest.Pipe, payloads ...[]byte) {
	t.Helper()
	for _, pl := range payloads {
		require.NoError(t, pipe.Complete(0, pl))
		require.Eventually(t, func() bool { return pipe.Pending() == NumBuffers }, time.Second, time.Millisecond)
	}
}

func next(t *testing.T, frames <-chan frame) frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
	return frame{}
}

func TestPipelineAssemblesFrame(t *testing.T) {
	_, pipe, frames := startPipeline(t, 64)

	feed(t, pipe,
		payload(false, false, false, 'a', 'b'),
		payload(false, true, false, 'c', 'd'),
	)
	f := next(t, frames)
	require.NoError(t, f.err)
	assert.Equal(t, []byte("abcd"), f.data)
}

func TestPipelineOutOfOrderCompletion(t *testing.T) {
	p, pipe, frames := startPipeline(t, 64)

	// one single-payload frame per read, completed out of submission order
	order := []int{7, 0, 5, 1, 3, 2, 1, 0}
	for i, idx := range order {
		require.NoError(t, pipe.Complete(idx, payload(i%2 == 1, true, false, byte(i))))
	}
	for i := range order {
		f := next(t, frames)
		require.NoError(t, f.err)
		assert.Equal(t, []byte{byte(i)}, f.data)
	}

	require.Eventually(t, func() bool { return pipe.Pending() == NumBuffers }, time.Second, time.Millisecond)
	assert.Equal(t, 2*NumBuffers, pipe.Submits())
	assert.Empty(t, p.filled)
	assert.Empty(t, p.free)

	require.NoError(t, p.Cancel())
	assert.Len(t, p.free, NumBuffers)
}

func TestPipelineErrorBitDiscardsFrame(t *testing.T) {
	_, pipe, frames := startPipeline(t, 64)

	feed(t, pipe,
		payload(false, false, false, 'a', 'b'),
		payload(false, false, true),
		payload(false, true, false, 'c', 'd'),
		payload(true, true, false, 'x', 'y', 'z'),
	)
	f := next(t, frames)
	assert.Equal(t, []byte("xyz"), f.data)
	assert.Empty(t, frames)
}

func TestPipelineFrameIDFlipStartsFreshFrame(t *testing.T) {
	_, pipe, frames := startPipeline(t, 64)

	feed(t, pipe,
		payload(false, false, false, 'a', 'b', 'c'),
		payload(true, false, false, 'd'),
		payload(true, true, false, 'e'),
	)
	f := next(t, frames)
	assert.Equal(t, []byte("de"), f.data)
}

func TestPipelineDiscardsBadHeaders(t *testing.T) {
	_, pipe, frames := startPipeline(t, 64)

	feed(t, pipe,
		[]byte{1, 0x82, 'a'},
		[]byte{9, 0x82, 'a'},
		[]byte{},
		payload(false, true, false, 'o', 'k'),
	)
	f := next(t, frames)
	assert.Equal(t, []byte("ok"), f.data)
	assert.Empty(t, frames)
}

func TestPipelineDestinationExhausted(t *testing.T) {
	_, pipe, frames := startPipeline(t, 4)

	feed(t, pipe,
		payload(false, false, false, 'a', 'b', 'c', 'd', 'e', 'f'),
		payload(false, true, false, 'g', 'h'),
		payload(true, true, false, 'i', 'j'),
	)
	assert.Equal(t, []byte("abcd"), next(t, frames).data)
	assert.Equal(t, []byte("ij"), next(t, frames).data)
	assert.Empty(t, frames)
}

func TestPipelineCancelWithReadsInFlight(t *testing.T) {
	p, pipe, frames := startPipeline(t, 64)

	feed(t, pipe, payload(false, false, false, 'a'))
	require.NoError(t, p.Cancel())

	assert.True(t, pipe.Closed())
	assert.Equal(t, 0, pipe.Pending())
	assert.Equal(t, StateIdle, p.State())
	assert.Len(t, p.free, NumBuffers)
	assert.Empty(t, frames)

	// a second cancel is a no-op
	require.NoError(t, p.Cancel())
}

func TestPipelineRestart(t *testing.T) {
	p, pipe, _ := startPipeline(t, 64)
	require.NoError(t, p.Cancel())

	again := &hosttest.Pipe{}
	require.NoError(t, p.Start(again, make([]byte, 64), func(int, error) {}))
	assert.Equal(t, NumBuffers, again.Pending())
	assert.True(t, pipe.Closed())
}

func TestPipelineStartWhileActive(t *testing.T) {
	p, _, _ := startPipeline(t, 64)
	err := p.Start(&hosttest.Pipe{}, make([]byte, 64), func(int, error) {})
	assert.ErrorIs(t, err, uvcerr.ErrBusy)
}

func TestPipelineDeviceLost(t *testing.T) {
	p, pipe, frames := startPipeline(t, 64)

	require.NoError(t, pipe.Fail(0, uvcerr.ErrNoDevice))
	f := next(t, frames)
	assert.ErrorIs(t, f.err, uvcerr.ErrIO)
	assert.ErrorIs(t, f.err, uvcerr.ErrNoDevice)

	require.Eventually(t, func() bool { return p.State() == StateIdle }, time.Second, time.Millisecond)
	assert.True(t, pipe.Closed())
	assert.Len(t, p.free, NumBuffers)
	assert.Empty(t, frames)
}

func TestPipelineTransientReadError(t *testing.T) {
	_, pipe, frames := startPipeline(t, 64)

	require.NoError(t, pipe.Fail(0, host.ErrStall))
	require.Eventually(t, func() bool { return pipe.Pending() == NumBuffers }, time.Second, time.Millisecond)
	feed(t, pipe, payload(false, true, false, 'z'))
	assert.Equal(t, []byte("z"), next(t, frames).data)
}
