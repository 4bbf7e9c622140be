package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrNoOwner means nothing is listening on the socket path.
var ErrNoOwner = errors.New("no colloquy owner listening")

// Conn is one client connection. Requests on it are answered in order.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	enc     *json.Encoder
	timeout time.Duration
}

// Dial connects to the owner. Missing or refused sockets wrap ErrNoOwner.
func Dial(ctx context.Context, path string, timeout time.Duration) (*Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return nil, fmt.Errorf("%w: %v", ErrNoOwner, err)
		}
		return nil, err
	}
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		enc:     json.NewEncoder(conn),
		timeout: timeout,
	}, nil
}

// Call sends req and waits up to the dial timeout for its response.
func (c *Conn) Call(req Request) (Response, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := c.enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Send performs one request/response roundtrip on a fresh connection.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	conn, err := Dial(ctx, path, timeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	return conn.Call(req)
}

// Probe checks whether a responsive owner is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: "status"}, timeout)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNoOwner) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

func isSocketMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
