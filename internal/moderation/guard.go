package moderation

import "github.com/whisper/moderation/internal/entity"

// Allowed reports whether an entity currently at from may be moved to to.
// Banned absorbs everything, Mature only blocks a later Clean, and Active
// accepts any verdict. Active itself is never a valid target.
func Allowed(from, to entity.ReviewStatus) bool {
	from = from.Normalize()
	switch to.Normalize() {
	case entity.StatusClean:
		return from != entity.StatusMature && from != entity.StatusBanned
	case entity.StatusMature:
		return from != entity.StatusBanned
	case entity.StatusBanned, entity.StatusFailed:
		return true
	}
	return false
}
