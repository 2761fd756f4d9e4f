package zyxel

import (
	"regexp"
	"strings"

	"olt-collector/internal/domain"
)

var separatorPattern = regexp.MustCompile(`^[\s-]*-{3,}[\s-]*$`)

type span struct {
	start, end int
}

// parseTable reads the fixed width tables printed by the Zyxel CLI: a header
// line followed by a dash separator whose runs give the column boundaries.
// Rows end at the first blank line, separator or "Total" footer.
func parseTable(output string) []domain.RawRecord {
	lines := strings.Split(strings.ReplaceAll(output, "\r", ""), "\n")

	sep := -1
	for i, line := range lines {
		if i > 0 && separatorPattern.MatchString(line) {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil
	}

	spans := columnSpans(lines[sep])
	header := []rune(lines[sep-1])
	headers := make([]string, len(spans))
	for i, s := range spans {
		headers[i] = cell(header, s, i == len(spans)-1)
	}

	var records []domain.RawRecord
	for _, line := range lines[sep+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || separatorPattern.MatchString(line) || strings.HasPrefix(strings.ToLower(trimmed), "total") {
			break
		}

		row := []rune(line)
		record := make(domain.RawRecord, len(spans))
		for i, s := range spans {
			if headers[i] == "" {
				continue
			}
			if value := cell(row, s, i == len(spans)-1); value != "" {
				record[headers[i]] = value
			}
		}

		if len(record) > 0 {
			records = append(records, record)
		}
	}

	return records
}

// columnSpans returns the dash runs of the separator in rune positions,
// since the CLI pads columns by character.
func columnSpans(separator string) []span {
	var spans []span
	start := -1

	runes := []rune(separator)
	for i, r := range runes {
		switch {
		case r == '-' && start < 0:
			start = i
		case r != '-' && start >= 0:
			spans = append(spans, span{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: len(runes)})
	}

	return spans
}

// cell slices a line by column span. The last column runs to end of line.
func cell(line []rune, s span, last bool) string {
	if s.start >= len(line) {
		return ""
	}

	end := s.end
	if last || end > len(line) {
		end = len(line)
	}

	return strings.TrimSpace(strings.ToValidUTF8(string(line[s.start:end]), ""))
}

// mergeByKey folds the columns of extra into the records sharing the same key.
// Records of extra without a match are ignored.
func mergeByKey(records, extra []domain.RawRecord, key string) {
	index := make(map[string]domain.RawRecord, len(records))
	for _, record := range records {
		if id, ok := record[key].(string); ok {
			index[id] = record
		}
	}

	for _, row := range extra {
		id, _ := row[key].(string)
		target, ok := index[id]
		if !ok {
			continue
		}
		for k, v := range row {
			if _, exists := target[k]; !exists {
				target[k] = v
			}
		}
	}
}
