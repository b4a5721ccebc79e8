package corpus

import "time"

// Entry models a published corpus item together with its aggregate
// interaction counters. The counters are mutated only inside interaction
// ledger transactions; everything else on the row belongs to the editorial
// surface and is read-only here.
type Entry struct {
	UniqueID      string    `gorm:"column:unique_id;primaryKey;size:190;not null"`
	Data          string    `gorm:"column:data;type:text;not null"`
	Note          string    `gorm:"column:note;type:text"`
	Category      string    `gorm:"column:category;size:64;index"`
	Tags          string    `gorm:"column:tags;type:text"`
	EditableLevel string    `gorm:"column:editable_level;size:32"`
	LikedNum      int64     `gorm:"column:liked_num;not null;default:0"`
	BookmarkNum   int64     `gorm:"column:bookmark_num;not null;default:0"`
	ViewNum       int64     `gorm:"column:view_num;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "corpus_entries"
}
