package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"olt-collector/internal/domain"
)

//go:embed status.yaml
var defaultStatusTable []byte

// StatusTable maps raw vendor status tokens to canonical codes.
// It is immutable once loaded and safe for concurrent reads.
type StatusTable struct {
	vendors map[domain.Vendor]map[string]domain.StatusCode
}

// DefaultStatusTable returns the built-in table
func DefaultStatusTable() (*StatusTable, error) {
	return ParseStatusTable(defaultStatusTable)
}

// LoadStatusTable returns the built-in table with any vendor present in the
// override file replaced wholesale. An empty path means no override.
func LoadStatusTable(overridePath string) (*StatusTable, error) {
	table, err := DefaultStatusTable()
	if err != nil {
		return nil, err
	}

	if overridePath == "" {
		return table, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("%w: erro ao ler tabela de status %s: %v", domain.ErrConfig, overridePath, err)
	}

	override, err := ParseStatusTable(data)
	if err != nil {
		return nil, err
	}

	for vendor, codes := range override.vendors {
		table.vendors[vendor] = codes
	}

	return table, nil
}

// ParseStatusTable decodes a YAML document of vendor -> token -> code
func ParseStatusTable(data []byte) (*StatusTable, error) {
	var raw map[string]map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: erro ao interpretar tabela de status: %v", domain.ErrConfig, err)
	}

	table := &StatusTable{vendors: make(map[domain.Vendor]map[string]domain.StatusCode, len(raw))}

	for vendor, tokens := range raw {
		if !domain.Vendor(vendor).Valid() {
			return nil, fmt.Errorf("%w: tabela de status para vendor desconhecido %q", domain.ErrConfig, vendor)
		}

		codes := make(map[string]domain.StatusCode, len(tokens))
		for token, code := range tokens {
			status := domain.StatusCode(code)
			if !status.Valid() {
				return nil, fmt.Errorf("%w: vendor %s, token %q mapeado para código inválido %d", domain.ErrConfig, vendor, token, code)
			}
			codes[canonicalToken(token)] = status
		}

		table.vendors[domain.Vendor(vendor)] = codes
	}

	return table, nil
}

// Normalize maps a raw token to its canonical code. Missing tables, nil,
// empty and unknown tokens all yield StatusUnknown.
func (t *StatusTable) Normalize(vendor domain.Vendor, raw any) domain.StatusCode {
	if t == nil || raw == nil {
		return domain.StatusUnknown
	}

	codes, ok := t.vendors[vendor]
	if !ok {
		return domain.StatusUnknown
	}

	var token string
	switch v := raw.(type) {
	case string:
		token = v
	case []byte:
		token = string(v)
	default:
		token = fmt.Sprint(v)
	}

	token = canonicalToken(token)
	if token == "" {
		return domain.StatusUnknown
	}

	if code, ok := codes[token]; ok {
		return code
	}
	return domain.StatusUnknown
}

// Tokens returns the known tokens of a vendor, canonicalized
func (t *StatusTable) Tokens(vendor domain.Vendor) []string {
	codes := t.vendors[vendor]
	tokens := make([]string, 0, len(codes))
	for token := range codes {
		tokens = append(tokens, token)
	}
	return tokens
}

func canonicalToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
