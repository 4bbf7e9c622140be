package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRoundTrip(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			require.Equal(t, "status", req.Command)
			return Response{OK: true, State: "capturing", Message: "ok"}
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "capturing", resp.State)
	require.Equal(t, "ok", resp.Message)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendDecodeResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "colloquy.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			if req.Command == "status" {
				return Response{OK: true, State: "idle"}
			}
			return Response{OK: false, Error: "bad"}
		}))
	}()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func TestSendCarriesArgsAndPayload(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type status struct {
		Mode  string `json:"mode"`
		Count int    `json:"count"`
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			resp, err := Response{OK: true, State: "idle"}.WithPayload(status{Mode: req.Arg(0), Count: len(req.Args)})
			if err != nil {
				return Response{OK: false, Error: err.Error()}
			}
			return resp
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: "mode", Args: []string{"push-to-talk"}}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)

	var got status
	require.NoError(t, resp.DecodePayload(&got))
	require.Equal(t, status{Mode: "push-to-talk", Count: 1}, got)
	require.Empty(t, Request{}.Arg(3))

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendWithoutOwnerWrapsErrNoOwner(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")

	_, err := Send(context.Background(), socketPath, Request{Command: "status"}, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNoOwner)

	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))
	_, err = Send(context.Background(), socketPath, Request{Command: "status"}, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNoOwner)
}

func TestConnCarriesSeveralRequests(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			calls.Add(1)
			return Response{OK: true, Message: req.Command}
		}))
	}()

	conn, err := Dial(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, err)

	for _, command := range []string{"status", "speakers", "status"} {
		resp, err := conn.Call(Request{Command: command})
		require.NoError(t, err)
		require.Equal(t, command, resp.Message)
	}
	require.Equal(t, int32(3), calls.Load())

	// An idle open connection must not hold up shutdown.
	cancel()
	require.NoError(t, <-serveDone)
	require.NoError(t, conn.Close())
}

func TestServeSkipsBlankLinesAndContinuesAfterBadRequest(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "colloquy.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			return Response{OK: true, Message: req.Command}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("\nnot-json\n{\"command\":\"toggle\"}\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	var first, second Response
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(line, &first))
	line, err = reader.ReadBytes('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(line, &second))

	require.False(t, first.OK)
	require.Contains(t, first.Error, "decode request")
	require.True(t, second.OK)
	require.Equal(t, "toggle", second.Message)

	cancel()
	require.NoError(t, <-serveDone)
}
