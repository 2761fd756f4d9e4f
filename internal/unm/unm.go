package unm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"olt-collector/internal/domain"
)

const (
	ErrorPattern  = "EADD=(.*)"
	StatusPattern = `EN=(\S+)\s+ENDESC=(.*)`
	TitlePrefix   = "title="

	LoginCommand        = "LOGIN:::CTAG::UN=%s,PWD=%s;"
	LogoutCommand       = "LOGOUT:::CTAG::;"
	ListOnuCommand      = "LST-ONU::OLTID=%s:CTAG::;"
	ListPonOnuCommand   = "LST-ONU::OLTID=%s,PONID=%s:CTAG::;"
	ListOnuStateCommand = "LST-ONUSTATE::OLTID=%s,PONID=%s:CTAG::;"
	ListOpticsCommand   = "LST-OMDDM::OLTID=%s,PONID=%s:CTAG::;"

	MaxRetryAttempts = 3
)

var (
	ErrServer             = errors.New("erro do servidor UNM")
	ErrIllegalSession     = errors.New("sessão ilegal")
	ErrSessionBusy        = errors.New("servidor UNM ocupado")
	ErrMaxRetriesExceeded = errors.New("número máximo de tentativas excedido")
)

var busyMarkers = []string{"busy", "too many", "user full", "session full"}

type Transporter interface {
	Close() error
	Reconnect(ctx context.Context) error
	IsConnected() bool
	Send(ctx context.Context, cmd string) (string, error)
}

type UNMClient struct {
	username    string
	password    string
	transporter Transporter
	mtx         sync.Mutex
	connected   bool
	logger      domain.Logger
	errorRegex  *regexp.Regexp
	statusRegex *regexp.Regexp
}

// New creates a new UNM client instance over an already dialed transport
func New(username, password string, transporter Transporter, logger domain.Logger) *UNMClient {
	return &UNMClient{
		username:    username,
		password:    password,
		logger:      logger,
		transporter: transporter,
		errorRegex:  regexp.MustCompile(ErrorPattern),
		statusRegex: regexp.MustCompile(StatusPattern),
	}
}

// Open logs in on the current transport
func (us *UNMClient) Open(ctx context.Context) error {
	us.mtx.Lock()
	defer us.mtx.Unlock()

	if us.connected {
		return nil
	}

	if err := us.Login(ctx); err != nil {
		return err
	}

	us.connected = true
	return nil
}

// Login authenticates with the UNM server
func (us *UNMClient) Login(ctx context.Context) error {
	command := fmt.Sprintf(LoginCommand, us.username, us.password)

	if _, err := us.sendCommand(ctx, command); err != nil {
		return fmt.Errorf("falha no login: %w", err)
	}

	return nil
}

// Logout logs out from the UNM server
func (us *UNMClient) Logout(ctx context.Context) error {
	if !us.transporter.IsConnected() {
		return nil
	}

	if _, err := us.sendCommand(ctx, LogoutCommand); err != nil {
		return fmt.Errorf("falha no logout: %w", err)
	}

	return nil
}

// Close logs out and closes the transport
func (us *UNMClient) Close(ctx context.Context) error {
	us.mtx.Lock()
	defer us.mtx.Unlock()

	return us.close(ctx)
}

// ListONUs lists the ONUs of one PON, or of the whole OLT when ponID is empty
func (us *UNMClient) ListONUs(ctx context.Context, oltID, ponID string) ([]OpticalNetworkUnit, error) {
	command := fmt.Sprintf(ListOnuCommand, oltID)
	if ponID != "" {
		command = fmt.Sprintf(ListPonOnuCommand, oltID, ponID)
	}

	var result []OpticalNetworkUnit

	return result, us.execRetry(ctx, func(ctx context.Context) error {
		rows, err := us.query(ctx, command)
		if err != nil {
			return fmt.Errorf("falha ao listar ONUs: %w", err)
		}

		result = make([]OpticalNetworkUnit, 0, len(rows))
		for _, row := range rows {
			result = append(result, onuFromRow(row))
		}
		return nil
	})
}

// ListONUStates lists the run state of every ONU of a PON
func (us *UNMClient) ListONUStates(ctx context.Context, oltID, ponID string) ([]OpticalNetworkUnitState, error) {
	command := fmt.Sprintf(ListOnuStateCommand, oltID, ponID)

	var result []OpticalNetworkUnitState

	return result, us.execRetry(ctx, func(ctx context.Context) error {
		rows, err := us.query(ctx, command)
		if err != nil {
			return fmt.Errorf("falha ao consultar estado das ONUs: %w", err)
		}

		result = make([]OpticalNetworkUnitState, 0, len(rows))
		for _, row := range rows {
			state := stateFromRow(row)
			if state.PonID == "" {
				state.PonID = ponID
			}
			result = append(result, state)
		}
		return nil
	})
}

// ListOptics retrieves the optical information of every ONU of a PON
func (us *UNMClient) ListOptics(ctx context.Context, oltID, ponID string) ([]OpticalNetworkUnitInfo, error) {
	command := fmt.Sprintf(ListOpticsCommand, oltID, ponID)

	var result []OpticalNetworkUnitInfo

	return result, us.execRetry(ctx, func(ctx context.Context) error {
		rows, err := us.query(ctx, command)
		if err != nil {
			return fmt.Errorf("falha ao consultar informações ópticas: %w", err)
		}

		result = make([]OpticalNetworkUnitInfo, 0, len(rows))
		for _, row := range rows {
			result = append(result, infoFromRow(row))
		}
		return nil
	})
}

// isIllegalSessionError checks if the error indicates an illegal session
func (us *UNMClient) isIllegalSessionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrIllegalSession) || strings.Contains(strings.ToLower(err.Error()), "illegal session")
}

// execRetry executes an operation, logging in again after a session error
func (us *UNMClient) execRetry(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := range MaxRetryAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := us.ensureConnection(ctx); err != nil {
			lastErr = err
			continue
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !us.isIllegalSessionError(err) {
			return err
		}

		us.mtx.Lock()
		us.connected = false
		us.mtx.Unlock()

		us.logger.WithError(err).WithField("attempt", attempt+1).Warn("Sessão UNM inválida, refazendo login")
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// query sends a listing command and returns its rows keyed by column title
func (us *UNMClient) query(ctx context.Context, command string) ([]map[string]string, error) {
	response, err := us.sendCommand(ctx, command)
	if err != nil {
		return nil, err
	}
	return parseRows(response), nil
}

// sendCommand sends a command to the UNM server and validates the response
func (us *UNMClient) sendCommand(ctx context.Context, command string) (string, error) {
	response, err := us.transporter.Send(ctx, command)
	if err != nil {
		return "", fmt.Errorf("falha no comando: %w", err)
	}

	if err := us.isResponseErr(response); err != nil {
		return "", err
	}

	return response, nil
}

// ensureConnection logs in again after the session was invalidated
func (us *UNMClient) ensureConnection(ctx context.Context) error {
	us.mtx.Lock()
	defer us.mtx.Unlock()

	if us.connected {
		return nil
	}

	if err := us.reconnectAndLogin(ctx); err != nil {
		return fmt.Errorf("falha ao reconectar: %w", err)
	}

	us.connected = true
	return nil
}

// reconnectAndLogin handles the reconnection and login process
func (us *UNMClient) reconnectAndLogin(ctx context.Context) error {
	if err := us.transporter.Reconnect(ctx); err != nil {
		return fmt.Errorf("falha na reconexão: %w", err)
	}

	if err := us.Login(ctx); err != nil {
		return fmt.Errorf("falha no login após reconexão: %w", err)
	}

	return nil
}

// isResponseErr checks if the server response carries an error code
func (us *UNMClient) isResponseErr(response string) error {
	message := ""

	if matches := us.statusRegex.FindStringSubmatch(response); len(matches) > 2 && matches[1] != "0" {
		message = strings.TrimSpace(matches[2])
		if message == "" {
			message = "EN=" + matches[1]
		}
	}

	if matches := us.errorRegex.FindStringSubmatch(response); message == "" && len(matches) > 1 {
		message = strings.TrimSpace(matches[1])
	}

	if message == "" {
		return nil
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "illegal session"):
		return fmt.Errorf("%w: %s", ErrIllegalSession, message)
	case containsAny(lower, busyMarkers):
		return fmt.Errorf("%w: %s", ErrSessionBusy, message)
	default:
		return fmt.Errorf("%w: %s", ErrServer, message)
	}
}

// close performs cleanup and closes the connection
func (us *UNMClient) close(ctx context.Context) error {
	wasConnected := us.connected
	us.connected = false

	var errs []error

	if wasConnected {
		if err := us.Logout(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := us.transporter.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// parseRows extracts the tab separated result blocks of a TL1 response.
// Each block starts after a "title=" line whose next line holds the column
// names; multi block responses repeat that header.
func parseRows(response string) []map[string]string {
	lines := strings.Split(strings.ReplaceAll(response, "\r", ""), "\n")

	var (
		rows    []map[string]string
		headers []string
		inTitle bool
	)

	for _, raw := range lines {
		line := strings.TrimLeft(raw, " ")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, TitlePrefix):
			inTitle = true
			headers = nil
			continue
		case inTitle:
			headers = splitColumns(line)
			inTitle = false
			continue
		case headers == nil:
			continue
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, ";") || !strings.Contains(line, "\t"):
			headers = nil
			continue
		}

		values := splitColumns(line)
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(values) && values[i] != "--" {
				row[header] = values[i]
			}
		}
		rows = append(rows, row)
	}

	return rows
}

func splitColumns(line string) []string {
	fields := strings.Split(strings.TrimRight(line, "\t "), "\t")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
