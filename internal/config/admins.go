package config

import "strconv"

// AdminSet is the immutable allowlist of Telegram user ids with admin rights.
// It is built once at start-up and only exposes reads.
type AdminSet struct {
	ids map[int64]struct{}
}

// ParseAdminSet parses a comma separated list of Telegram ids. Invalid entries are skipped.
func ParseAdminSet(raw string) AdminSet {
	ids := make(map[int64]struct{})
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return AdminSet{ids: ids}
}

// NewAdminSet builds a set from already parsed ids
func NewAdminSet(ids ...int64) AdminSet {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return AdminSet{ids: m}
}

// Contains reports whether id is an admin
func (s AdminSet) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of admins
func (s AdminSet) Len() int {
	return len(s.ids)
}
