package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUnixSeconds parses a decimal-string unix-seconds timestamp as
// reported by the indexer.
func ParseUnixSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return v, nil
}
