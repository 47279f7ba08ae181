//go:build !windows

package pipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempPipePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.pipe")
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	payload := []byte("hello from the other side")
	done := make(chan error, 1)
	go func() { done <- Write(path, payload, 1000) }()

	got, err := p.ReadBlocking(context.Background(), 1000)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, payload, got)
}

func TestCreateFailsIfPathExists(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	_, err = Create(path)
	require.Error(t, err)
}

func TestDestroyIsIdempotent(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, p.Destroy())
	require.NoError(t, p.Destroy())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestWriteToNonexistentPipeTimesOut(t *testing.T) {
	path := tempPipePath(t)
	start := time.Now()
	err := Write(path, []byte("x"), 50)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestReadBlockingWithoutWriterTimesOut(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	_, err = p.ReadBlocking(context.Background(), 50)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestReadBlockingRespectsCancellation(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.ReadBlocking(ctx, 5000)
	require.Error(t, err)
}

func TestExactBufferSizePayloadRoundTrips(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	payload := make([]byte, bufferSize)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	done := make(chan error, 1)
	go func() { done <- Write(path, payload, 1000) }()

	got, err := p.ReadBlocking(context.Background(), 1000)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, payload, got)
}

func TestMultiChunkPayloadRoundTrips(t *testing.T) {
	path := tempPipePath(t)
	p, err := Create(path)
	require.NoError(t, err)
	defer p.Destroy()

	payload := make([]byte, bufferSize*3+7)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	done := make(chan error, 1)
	go func() { done <- Write(path, payload, 1000) }()

	got, err := p.ReadBlocking(context.Background(), 1000)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, payload, got)
}
