package config

import (
	"fmt"
	"strconv"
	"strings"
)

type idRange struct {
	lo, hi uint32
}

// IDSet is a parsed identifier range expression such as
// "0x700-0x7ff,0x123". A nil or empty set claims every identifier.
type IDSet struct {
	ranges []idRange
}

// ParseIDRanges parses a comma separated list of single identifiers
// and lo-hi ranges. Values may be decimal or 0x-prefixed hex and must
// not exceed max. An empty expression yields a claim-all set.
func ParseIDRanges(expr string, max uint32) (*IDSet, error) {
	set := &IDSet{}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return set, nil
	}
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if idx := strings.Index(part, "-"); idx >= 0 {
			lo, hi = strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+1:])
		}
		loV, err := parseID(lo, max)
		if err != nil {
			return nil, err
		}
		hiV, err := parseID(hi, max)
		if err != nil {
			return nil, err
		}
		if hiV < loV {
			return nil, fmt.Errorf("descending range %q", part)
		}
		set.ranges = append(set.ranges, idRange{lo: loV, hi: hiV})
	}
	return set, nil
}

func parseID(s string, max uint32) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad identifier %q: %w", s, err)
	}
	if uint32(v) > max {
		return 0, fmt.Errorf("identifier 0x%x exceeds maximum 0x%x", v, max)
	}
	return uint32(v), nil
}

// Contains reports whether id is claimed. Empty sets claim everything.
func (s *IDSet) Contains(id uint32) bool {
	if s == nil || len(s.ranges) == 0 {
		return true
	}
	for _, r := range s.ranges {
		if id >= r.lo && id <= r.hi {
			return true
		}
	}
	return false
}

// Empty reports whether the set was parsed from an empty expression.
func (s *IDSet) Empty() bool {
	return s == nil || len(s.ranges) == 0
}
