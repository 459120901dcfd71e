package binnacle

import "github.com/binnacle-dev/binnacle/internal/actionlog"

// logEntry builds an action log entry for a mutation; detail, when
// non-empty, is recorded as the single "detail" field of the Extra bag.
func logEntry(kind, entityID, detail string) actionlog.Entry {
	e := actionlog.Entry{Kind: kind, EntityID: entityID}
	if detail != "" {
		e.Extra = map[string]any{"detail": detail}
	}
	return e
}

// logAction appends an action log entry, swallowing write failures: losing
// the audit trail never affects correctness (see internal/actionlog).
func (s *Store) logAction(kind, entityID, detail string) {
	_ = s.actions.Append(logEntry(kind, entityID, detail), s.configBool(ConfigActionLogSanitize))
}
