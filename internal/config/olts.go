package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"olt-collector/internal/domain"
)

const (
	DefaultDeviceTimeout = 5 * time.Second
	DefaultSNMPPort      = 161
	DefaultSNMPCommunity = "public"
)

type oltFile struct {
	Defaults oltEntry   `yaml:"defaults"`
	OLTs     []oltEntry `yaml:"olts"`
}

// oltEntry uses pointers so that an omitted key can be told apart from a zero value
type oltEntry struct {
	ID            *string   `yaml:"id"`
	Vendor        *string   `yaml:"vendor"`
	Host          *string   `yaml:"host"`
	Port          *int      `yaml:"port"`
	Username      *string   `yaml:"username"`
	Password      *string   `yaml:"password"`
	PollInterval  *int      `yaml:"poll_interval"`
	Prompt        *string   `yaml:"prompt"`
	Description   *string   `yaml:"description"`
	Timeout       *float64  `yaml:"timeout"`
	Debug         *bool     `yaml:"debug"`
	SNMP          *snmpInfo `yaml:"snmp"`
	ScanSelectors []string  `yaml:"scan_selectors"`
	UNMOltID      *string   `yaml:"unm_olt_id"`
}

type snmpInfo struct {
	Community *string `yaml:"community"`
	IP        *string `yaml:"ip"`
	Port      *int    `yaml:"port"`
	Version   *string `yaml:"version"`
}

// LoadOLTFile reads and validates the OLT definitions
func LoadOLTFile(path string) ([]domain.OLT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: erro ao ler arquivo de OLTs %s: %v", domain.ErrConfig, path, err)
	}
	return ParseOLTs(data)
}

// ParseOLTs decodes the YAML document, merges the defaults block into every
// entry and validates the result
func ParseOLTs(data []byte) ([]domain.OLT, error) {
	var file oltFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: erro ao interpretar arquivo de OLTs: %v", domain.ErrConfig, err)
	}

	if len(file.OLTs) == 0 {
		return nil, fmt.Errorf("%w: nenhuma OLT definida", domain.ErrConfig)
	}

	if file.Defaults.ID != nil {
		return nil, fmt.Errorf("%w: defaults não pode definir id", domain.ErrConfig)
	}

	olts := make([]domain.OLT, 0, len(file.OLTs))
	seen := make(map[string]struct{}, len(file.OLTs))

	for i, entry := range file.OLTs {
		entry.applyDefaults(file.Defaults)

		olt, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: olts[%d]: %v", domain.ErrConfig, i, err)
		}

		if _, dup := seen[olt.ID]; dup {
			return nil, fmt.Errorf("%w: id de OLT duplicado: %s", domain.ErrConfig, olt.ID)
		}
		seen[olt.ID] = struct{}{}

		olts = append(olts, olt)
	}

	return olts, nil
}

// applyDefaults fills every key the entry omits from the defaults block
func (e *oltEntry) applyDefaults(d oltEntry) {
	e.Vendor = coalesce(e.Vendor, d.Vendor)
	e.Host = coalesce(e.Host, d.Host)
	e.Port = coalesce(e.Port, d.Port)
	e.Username = coalesce(e.Username, d.Username)
	e.Password = coalesce(e.Password, d.Password)
	e.PollInterval = coalesce(e.PollInterval, d.PollInterval)
	e.Prompt = coalesce(e.Prompt, d.Prompt)
	e.Description = coalesce(e.Description, d.Description)
	e.Timeout = coalesce(e.Timeout, d.Timeout)
	e.Debug = coalesce(e.Debug, d.Debug)
	e.UNMOltID = coalesce(e.UNMOltID, d.UNMOltID)

	if e.ScanSelectors == nil {
		e.ScanSelectors = d.ScanSelectors
	}

	if d.SNMP != nil {
		if e.SNMP == nil {
			e.SNMP = &snmpInfo{}
		}
		e.SNMP.Community = coalesce(e.SNMP.Community, d.SNMP.Community)
		e.SNMP.IP = coalesce(e.SNMP.IP, d.SNMP.IP)
		e.SNMP.Port = coalesce(e.SNMP.Port, d.SNMP.Port)
		e.SNMP.Version = coalesce(e.SNMP.Version, d.SNMP.Version)
	}
}

func (e *oltEntry) toDomain() (domain.OLT, error) {
	olt := domain.OLT{
		ID:            strings.TrimSpace(deref(e.ID)),
		Vendor:        domain.Vendor(strings.TrimSpace(deref(e.Vendor))),
		Host:          strings.TrimSpace(deref(e.Host)),
		Port:          deref(e.Port),
		Username:      deref(e.Username),
		Password:      deref(e.Password),
		Prompt:        deref(e.Prompt),
		Description:   deref(e.Description),
		Debug:         deref(e.Debug),
		Timeout:       DefaultDeviceTimeout,
		ScanSelectors: e.ScanSelectors,
		UNMOltID:      strings.TrimSpace(deref(e.UNMOltID)),
	}

	if olt.ID == "" {
		return olt, errors.New("id é obrigatório")
	}
	if !olt.Vendor.Valid() {
		return olt, fmt.Errorf("vendor não suportado %q (OLT %s)", olt.Vendor, olt.ID)
	}
	if olt.Host == "" {
		return olt, fmt.Errorf("host é obrigatório (OLT %s)", olt.ID)
	}
	if olt.Port < 1 || olt.Port > 65535 {
		return olt, fmt.Errorf("porta inválida %d (OLT %s)", olt.Port, olt.ID)
	}

	interval := deref(e.PollInterval)
	if interval <= 0 {
		return olt, fmt.Errorf("poll_interval deve ser maior que zero (OLT %s)", olt.ID)
	}
	olt.PollInterval = time.Duration(interval) * time.Second

	if e.Timeout != nil {
		if *e.Timeout <= 0 {
			return olt, fmt.Errorf("timeout deve ser maior que zero (OLT %s)", olt.ID)
		}
		olt.Timeout = time.Duration(*e.Timeout * float64(time.Second))
	}

	olt.SNMP = domain.SNMPSettings{
		Community: DefaultSNMPCommunity,
		Host:      olt.Host,
		Port:      DefaultSNMPPort,
		Version:   "2c",
	}
	if e.SNMP != nil {
		if e.SNMP.Community != nil {
			olt.SNMP.Community = *e.SNMP.Community
		}
		if e.SNMP.IP != nil && *e.SNMP.IP != "" {
			olt.SNMP.Host = *e.SNMP.IP
		}
		if e.SNMP.Port != nil {
			if *e.SNMP.Port < 1 || *e.SNMP.Port > 65535 {
				return olt, fmt.Errorf("porta SNMP inválida %d (OLT %s)", *e.SNMP.Port, olt.ID)
			}
			olt.SNMP.Port = uint16(*e.SNMP.Port)
		}
		if e.SNMP.Version != nil {
			olt.SNMP.Version = *e.SNMP.Version
		}
	}

	if olt.UNMOltID == "" {
		olt.UNMOltID = olt.Host
	}

	for _, selector := range olt.ScanSelectors {
		if strings.TrimSpace(selector) == "" {
			return olt, fmt.Errorf("scan_selectors não pode conter valores vazios (OLT %s)", olt.ID)
		}
	}

	return olt, nil
}

func coalesce[T any](value, fallback *T) *T {
	if value != nil {
		return value
	}
	return fallback
}

func deref[T any](value *T) T {
	var zero T
	if value == nil {
		return zero
	}
	return *value
}
