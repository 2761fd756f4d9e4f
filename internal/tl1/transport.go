package tl1

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Connection constants
	DefaultConnectionTimeout = 30 * time.Second
	DefaultCommandTimeout    = 30 * time.Second
	ReadBufferSize           = 4096
	CommandTerminator        = ";"
	ConnectionCheckTimeout   = 500 * time.Millisecond
)

var (
	ErrNotConnected    = errors.New("not connected to server")
	ErrConnectionLost  = errors.New("connection lost")
	ErrReadTimeout     = errors.New("read timeout")
	ErrInvalidResponse = errors.New("invalid response format")
)

// Transport is a TL1 session over plain TCP. Commands are serialized.
type Transport struct {
	hostname string
	port     uint16
	timeout  time.Duration
	conn     net.Conn
	mu       sync.Mutex
	closed   bool

	// connMu guards conn for abort, which must not wait on a pending command
	connMu sync.Mutex
}

// Dial creates a Transport and establishes the connection. timeout bounds the
// dial and every command round trip; zero selects the defaults.
func Dial(ctx context.Context, hostname string, port uint16, timeout time.Duration) (*Transport, error) {
	if hostname == "" {
		return nil, errors.New("hostname cannot be empty")
	}
	if port == 0 {
		return nil, errors.New("port must be greater than 0")
	}

	t := &Transport{
		hostname: hostname,
		port:     port,
		timeout:  timeout,
	}

	if err := t.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}

	return t, nil
}

// connect establishes a TCP connection to the TL1 server
func (t *Transport) connect(ctx context.Context) error {
	address := t.GetAddress()

	dialTimeout := DefaultConnectionTimeout
	if t.timeout > 0 {
		dialTimeout = t.timeout
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	t.setConn(conn)
	t.closed = false
	return nil
}

func (t *Transport) setConn(conn net.Conn) {
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
}

// isConnectionAlive checks if the connection is still alive by attempting a short read
func (t *Transport) isConnectionAlive() error {
	if t.conn == nil {
		return ErrNotConnected
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(ConnectionCheckTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	buffer := make([]byte, 1)
	_, err := t.conn.Read(buffer)

	t.conn.SetReadDeadline(time.Time{})

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Timeout is expected and means connection is alive
			return nil
		}
		return fmt.Errorf("connection check failed: %w", err)
	}

	return nil
}

// readResponse reads until a chunk ends with the command terminator
func (t *Transport) readResponse(reader *bufio.Reader) (string, error) {
	var response strings.Builder
	buffer := make([]byte, ReadBufferSize)

	for {
		n, err := reader.Read(buffer)
		if n > 0 {
			response.Write(buffer[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return "", ErrReadTimeout
			}
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		if strings.HasSuffix(strings.TrimSpace(response.String()), CommandTerminator) {
			break
		}
	}

	result := response.String()
	if result == "" {
		return "", ErrInvalidResponse
	}

	return result, nil
}

// Cmd sends a command to the TL1 server and returns the raw response
func (t *Transport) Cmd(command string) (string, error) {
	if command == "" {
		return "", errors.New("command cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return "", ErrNotConnected
	}

	timeout := DefaultCommandTimeout
	if t.timeout > 0 {
		timeout = t.timeout
	}
	if err := t.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("failed to set deadline: %w", err)
	}
	defer t.conn.SetDeadline(time.Time{})

	if _, err := t.conn.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("%w: failed to send command: %v", ErrConnectionLost, err)
	}

	response, err := t.readResponse(bufio.NewReader(t.conn))
	if err != nil {
		return "", err
	}

	return response, nil
}

// Send sends a command with context support for cancellation/timeout.
// Cancelling the context drops the connection so the pending read returns.
func (t *Transport) Send(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", errors.New("command cannot be empty")
	}

	resultChan := make(chan struct {
		response string
		err      error
	}, 1)

	go func() {
		response, err := t.Cmd(command)
		resultChan <- struct {
			response string
			err      error
		}{response, err}
	}()

	select {
	case result := <-resultChan:
		return result.response, result.err
	case <-ctx.Done():
		t.abort()
		return "", fmt.Errorf("command cancelled: %w", ctx.Err())
	}
}

// abort closes the socket without taking the command lock
func (t *Transport) abort() {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Reconnect forces a reconnection to the TL1 server
func (t *Transport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
	}

	return t.connect(ctx)
}

// Close closes the connection to the TL1 server
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	if t.conn != nil {
		err := t.conn.Close()
		t.setConn(nil)
		return err
	}

	return nil
}

// IsConnected returns true if the transport is connected to the server
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return false
	}

	return t.isConnectionAlive() == nil
}

// GetAddress returns the connection address
func (t *Transport) GetAddress() string {
	return net.JoinHostPort(t.hostname, strconv.Itoa(int(t.port)))
}
