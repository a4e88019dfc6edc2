// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Post represents an anonymous post in a company feed.
type Post struct {
	ID            string `gorm:"primaryKey;size:26" json:"id"`
	CompanyDomain string `gorm:"size:253;not null;index:idx_posts_domain_created,priority:1" json:"company_domain"`
	AnonymousID   string `gorm:"size:16;not null" json:"anonymous_id"`
	Content       string `gorm:"type:text;not null" json:"content"`
	// LikeCount is not persisted; computed at query time
	LikeCount int `gorm:"->;-:migration" json:"like_count"`
	// CommentCount is not persisted; computed at query time
	CommentCount int `gorm:"->;-:migration" json:"comment_count"`
	// Liked indicates whether the requesting identity liked this post (computed)
	Liked     bool      `gorm:"-" json:"liked"`
	CreatedAt time.Time `gorm:"not null;index;index:idx_posts_domain_created,priority:2" json:"created_at"`
}

// SortMode selects the ordering of a feed query.
type SortMode string

const (
	// SortNew orders by creation time, newest first.
	SortNew SortMode = "new"
	// SortTop orders by like count, then creation time, both descending.
	SortTop SortMode = "top"
)

// ParseSortMode maps a query value onto a SortMode. An empty value means SortNew
// and "hot" is accepted as an alias for SortTop.
func ParseSortMode(raw string) (SortMode, bool) {
	switch raw {
	case "", string(SortNew):
		return SortNew, true
	case string(SortTop), "hot":
		return SortTop, true
	default:
		return "", false
	}
}

// Page bounds a feed query.
type Page struct {
	Limit  int
	Offset int
}

// ToggleResult is the outcome of a like toggle.
type ToggleResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}
