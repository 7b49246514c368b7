package ndi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	frames []Frame
	idx    int
	closed bool
}

func (f *fakeReceiver) Receive(ctx context.Context) (Frame, error) {
	if f.idx >= len(f.frames) {
		return Frame{}, errors.New("disconnected")
	}
	fr := f.frames[f.idx]
	f.idx++
	return fr, nil
}

func (f *fakeReceiver) Close() error {
	f.closed = true
	return nil
}

func TestAdapterKeepsSourceNameAlive(t *testing.T) {
	name := []byte("STUDIO-A (Program)")
	var capturedName string

	adapter, err := NewAdapter(string(name), time.Second, func(sourceName string, _ time.Duration) (Receiver, error) {
		capturedName = sourceName
		return &fakeReceiver{frames: []Frame{{SampleRate: 48000, Channels: 2, SamplesPerChannel: 48}}}, nil
	})
	require.NoError(t, err)

	// Mutate the caller's original buffer; the adapter must not have
	// retained a view into it.
	for i := range name {
		name[i] = 'X'
	}

	assert.Equal(t, "STUDIO-A (Program)", capturedName)
	assert.Equal(t, "STUDIO-A (Program)", adapter.SourceName())
}

func TestAdapterNextFrame(t *testing.T) {
	recv := &fakeReceiver{frames: []Frame{{SampleRate: 48000, Channels: 2, SamplesPerChannel: 48}}}
	adapter, err := NewAdapter("src", time.Second, func(string, time.Duration) (Receiver, error) { return recv, nil })
	require.NoError(t, err)

	f, err := adapter.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48, f.SamplesPerChannel)

	_, err = adapter.NextFrame(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceLost))
}

func TestAdapterCloseIsTerminal(t *testing.T) {
	recv := &fakeReceiver{frames: []Frame{{SampleRate: 48000, Channels: 2, SamplesPerChannel: 48}}}
	adapter, err := NewAdapter("src", time.Second, func(string, time.Duration) (Receiver, error) { return recv, nil })
	require.NoError(t, err)

	require.NoError(t, adapter.Close())
	assert.True(t, recv.closed)

	_, err = adapter.NextFrame(context.Background())
	assert.True(t, errors.Is(err, ErrSourceLost))

	// Close is idempotent.
	require.NoError(t, adapter.Close())
}
