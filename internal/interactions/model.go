package interactions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimsum-app/backend/internal/corpus"
)

// ErrUnknownListFilter indicates a list filter outside liked|bookmarked.
var ErrUnknownListFilter = errors.New("interactions: unknown list filter")

// Record tracks one user's interaction flags for one corpus entry.
// Created on first interaction; never deleted by this service.
type Record struct {
	UserID       string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	ContentID    string    `gorm:"column:content_id;primaryKey;size:190;not null;index"`
	Category     string    `gorm:"column:category;size:64"`
	IsLiked      bool      `gorm:"column:is_liked;not null;default:false"`
	IsBookmarked bool      `gorm:"column:is_bookmarked;not null;default:false"`
	IsViewed     bool      `gorm:"column:is_viewed;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "user_corpus_interactions"
}

// UpsertRequest carries the flags present in a toggle request. A nil field
// keeps the stored value and contributes a zero counter delta.
type UpsertRequest struct {
	IsLiked      *bool
	IsBookmarked *bool
}

// Flags is the per-pair interaction status returned to clients.
type Flags struct {
	IsLiked      bool       `json:"is_liked"`
	IsBookmarked bool       `json:"is_bookmarked"`
	IsViewed     bool       `json:"is_viewed"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// ViewResult reports what a recordView call changed.
type ViewResult struct {
	ContentID         string
	ViewNum           int64
	MarkedViewed      bool
	AuthenticatedCall bool
}

// ListFilter selects which flag the list endpoint filters on.
type ListFilter string

const (
	// FilterLiked lists entries whose stored record has is_liked set.
	FilterLiked ListFilter = "liked"
	// FilterBookmarked lists entries whose stored record has is_bookmarked set.
	FilterBookmarked ListFilter = "bookmarked"
)

// ParseListFilter validates raw input against the closed filter set.
func ParseListFilter(rawInput string) (ListFilter, error) {
	switch ListFilter(strings.ToLower(strings.TrimSpace(rawInput))) {
	case FilterLiked:
		return FilterLiked, nil
	case FilterBookmarked:
		return FilterBookmarked, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownListFilter, rawInput)
	}
}

// ListItem pairs a stored record with the corpus entry it references.
type ListItem struct {
	Record Record
	Entry  corpus.Entry
}

// ListPage is one page of list results plus pagination metadata.
type ListPage struct {
	Items      []ListItem
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}
