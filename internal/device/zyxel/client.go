// Package zyxel drives the Zyxel OLT CLI over an interactive SSH session.
package zyxel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	expect "github.com/google/goexpect"
	"golang.org/x/crypto/ssh"

	"olt-collector/internal/domain"
)

const (
	StatusCommand = "show remote ont"
	OpticsCommand = "show remote ont ddmi"

	// KeyAID is the column every table is joined on
	KeyAID = "AID"
)

// DefaultPromptPattern matches "hostname#" or "hostname>" style prompts
var DefaultPromptPattern = regexp.MustCompile(`(?m)[\w\-\[\]()]+[#>]\s*$`)

var busyBanners = []string{
	"another session",
	"too many sessions",
	"maximum number of",
	"system is busy",
	"device busy",
}

// session is one interactive CLI exchange
type session interface {
	Execute(command string) (string, error)
	Close() error
}

// Client talks to zyxel1408A, zyxel2406 and zyxel1240XA line terminals
type Client struct {
	olt      domain.OLT
	log      domain.Logger
	promptRE *regexp.Regexp
	open     func(ctx context.Context) (session, error)
	sess     session
}

// New creates a Zyxel client. No I/O happens until Connect.
func New(olt domain.OLT, log domain.Logger) *Client {
	c := &Client{
		olt:      olt,
		log:      log,
		promptRE: promptPattern(olt.Prompt),
	}
	c.open = c.dialSSH
	return c
}

// Connect opens the SSH session and waits for the first prompt
func (c *Client) Connect(ctx context.Context) error {
	if c.sess != nil {
		return nil
	}

	sess, err := c.open(ctx)
	if err != nil {
		return err
	}

	c.sess = sess
	return nil
}

// ListEntities runs the status and optics tables and joins them on AID.
// zyxel1240XA scans one card/port per selector; the other families always
// print the full table and ignore selectors.
func (c *Client) ListEntities(ctx context.Context, selectors []string) ([]domain.RawRecord, error) {
	if c.sess == nil {
		return nil, fmt.Errorf("%w: sessão zyxel não conectada", domain.ErrDeviceUnavailable)
	}

	// the expect session has no context support; closing it unblocks a pending Expect
	sess := c.sess
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	scopes := []string{""}
	if c.olt.Vendor == domain.VendorZyxel1240XA && len(selectors) > 0 {
		scopes = selectors
	}

	var records []domain.RawRecord
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}

		scanned, err := c.scan(scope)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, ctxErr)
			}
			return nil, err
		}

		c.log.WithFields(map[string]any{
			"scope":   scope,
			"records": len(scanned),
		}).Debug("Varredura zyxel concluída")

		records = append(records, scanned...)
	}

	return records, nil
}

// Disconnect leaves the CLI and closes the session
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sess == nil {
		return nil
	}

	sess := c.sess
	c.sess = nil

	return sess.Close()
}

func (c *Client) scan(scope string) ([]domain.RawRecord, error) {
	status, err := c.execute(withScope(StatusCommand, scope))
	if err != nil {
		return nil, err
	}
	records := parseTable(status)

	optics, err := c.execute(withScope(OpticsCommand, scope))
	if err != nil {
		return nil, err
	}
	mergeByKey(records, parseTable(optics), KeyAID)

	return records, nil
}

func (c *Client) execute(command string) (string, error) {
	output, err := c.sess.Execute(command)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, command, err)
	}
	if isBusy(output) {
		return "", fmt.Errorf("%w: %s", domain.ErrDeviceBusy, strings.TrimSpace(output))
	}
	return output, nil
}

// withScope turns "show remote ont ddmi" into "show remote ont 1-1 ddmi"
func withScope(command, scope string) string {
	if scope == "" {
		return command
	}
	if rest, ok := strings.CutPrefix(command, StatusCommand); ok {
		return strings.TrimSpace(StatusCommand + " " + scope + rest)
	}
	return command + " " + scope
}

func isBusy(output string) bool {
	lower := strings.ToLower(output)
	for _, banner := range busyBanners {
		if strings.Contains(lower, banner) {
			return true
		}
	}
	return false
}

func promptPattern(prompt string) *regexp.Regexp {
	if strings.TrimSpace(prompt) == "" {
		return DefaultPromptPattern
	}
	return regexp.MustCompile(`(?m)` + regexp.QuoteMeta(strings.TrimSpace(prompt)) + `\s*$`)
}

func (c *Client) dialSSH(ctx context.Context) (session, error) {
	config := &ssh.ClientConfig{
		User: c.olt.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.olt.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.olt.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.olt.Timeout,
	}

	address := net.JoinHostPort(c.olt.Host, strconv.Itoa(c.olt.Port))

	dialer := net.Dialer{Timeout: c.olt.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: erro ao conectar em %s: %v", domain.ErrDeviceUnavailable, address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		if isBusy(err.Error()) {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceBusy, err)
		}
		return nil, fmt.Errorf("%w: falha no handshake ssh com %s: %v", domain.ErrDeviceUnavailable, address, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	exp, _, err := expect.SpawnSSH(client, c.olt.Timeout,
		expect.Verbose(c.olt.Debug),
		expect.CheckDuration(100*time.Millisecond),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: falha ao abrir sessão expect: %v", domain.ErrDeviceUnavailable, err)
	}

	sess := &expectSession{
		exp:      exp,
		client:   client,
		promptRE: c.promptRE,
		timeout:  c.olt.Timeout,
	}

	banner, _, err := exp.Expect(c.promptRE, c.olt.Timeout)
	if err != nil {
		_ = sess.Close()
		if isBusy(banner) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDeviceBusy, strings.TrimSpace(banner))
		}
		return nil, fmt.Errorf("%w: aguardando prompt: %v", domain.ErrDeviceUnavailable, err)
	}

	return sess, nil
}

// expectSession wraps goexpect over an SSH client
type expectSession struct {
	exp      *expect.GExpect
	client   *ssh.Client
	promptRE *regexp.Regexp
	timeout  time.Duration
	once     sync.Once
	closeErr error
}

func (s *expectSession) Execute(command string) (string, error) {
	if err := s.exp.Send(command + "\n"); err != nil {
		return "", fmt.Errorf("erro ao enviar %q: %w", command, err)
	}

	output, _, err := s.exp.Expect(s.promptRE, s.timeout)
	if err != nil {
		return output, fmt.Errorf("tempo esgotado aguardando prompt após %q: %w", command, err)
	}

	return cleanOutput(output, command, s.promptRE), nil
}

func (s *expectSession) Close() error {
	s.once.Do(func() {
		_ = s.exp.Send("exit\n")
		s.closeErr = errors.Join(s.exp.Close(), s.client.Close())
	})
	return s.closeErr
}

// cleanOutput drops the command echo and the trailing prompt
func cleanOutput(output, command string, promptRE *regexp.Regexp) string {
	lines := strings.Split(output, "\n")
	cleaned := make([]string, 0, len(lines))

	for i, line := range lines {
		if i == 0 && strings.Contains(line, command) {
			continue
		}
		if promptRE.MatchString(strings.TrimSpace(line)) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}
