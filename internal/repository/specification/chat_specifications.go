package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByHistoryID struct {
	HistoryID uuid.UUID
}

func (s ByHistoryID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("history_id = ?", s.HistoryID)
}

// NewestFirst orders histories by last activity.
func NewestFirst() []Specification {
	return []Specification{
		OrderBy{Field: "updated_at", Desc: true},
		OrderBy{Field: "created_at", Desc: true},
	}
}

// Chronological orders exchanges oldest first. The id tiebreak keeps equal timestamps stable.
func Chronological() []Specification {
	return []Specification{
		OrderBy{Field: "created_at"},
		OrderBy{Field: "id"},
	}
}
