// Package solicit sends referral request emails on behalf of businesses,
// one at a time, in bulk from pasted text or CSV, or from a CRM through an
// API key with a daily quota.
package solicit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const emailPattern = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

var (
	emailRe        = regexp.MustCompile(emailPattern)
	emailExactRe   = regexp.MustCompile(`^` + emailPattern + `$`)
	errEmptyHeader = errors.New("csv has no header row")
)

// ExtractEmails returns every address found in free text, in order of
// appearance. Separators are irrelevant.
func ExtractEmails(text string) []string {
	return emailRe.FindAllString(text, -1)
}

// ValidEmail reports whether s is exactly one address, with nothing before
// or after it.
func ValidEmail(s string) bool {
	return emailExactRe.MatchString(s)
}

// EmailsFromCSV reads a CSV with a header row. For each row, the first
// column whose header contains "email" is taken when it holds an address.
func EmailsFromCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errEmptyHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := -1
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), "email") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, nil
	}

	var out []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read csv: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if email := strings.TrimSpace(row[col]); ValidEmail(email) {
			out = append(out, email)
		}
	}
}

// dedupe keeps the first occurrence of each address.
func dedupe(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
