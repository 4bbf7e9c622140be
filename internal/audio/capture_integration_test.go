//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureDefaultSourceIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	selection, err := SelectDevice(ctx, "default", "")
	require.NoError(t, err)

	capture, err := StartCapture(ctx, selection.Device, ConstraintsFor("default", "", 0))
	require.NoError(t, err)
	defer capture.Release()

	select {
	case chunk := <-capture.Chunks():
		require.Len(t, chunk, ChunkSizeBytes)
	case <-ctx.Done():
		t.Fatal("no audio chunk from default source")
	}
}
