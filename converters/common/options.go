package common

import (
	"strings"
)

// ConversionConfig stores per-source options for the parsing step.
type ConversionConfig struct {
	Delimiter rune   // Delimiter used for CSV/text parsing; detected when 0
	Encoding  string // IANA character set name; UTF-8 when empty
	Sheet     string // Worksheet name (excel) or table id (html); first one when empty
}

// DetectDelimiter attempts to detect the delimiter from a raw line of text.
// It checks common delimiters and returns the one that produces the most fields.
// Defaults to comma if line is empty or no clear winner.
func DetectDelimiter(line string) rune {
	if line == "" {
		return ','
	}

	delimiters := []rune{',', '\t', ';', '|'}
	maxCount := -1
	winner := ','

	for _, delim := range delimiters {
		count := strings.Count(line, string(delim))
		if count > maxCount {
			maxCount = count
			winner = delim
		}
	}

	return winner
}
