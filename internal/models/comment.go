package models

import (
	"time"
)

// Comment represents an anonymous comment on a post.
type Comment struct {
	ID            string `gorm:"primaryKey;size:26" json:"id"`
	PostID        string `gorm:"size:26;not null;index:idx_comments_post_created,priority:1" json:"post_id"`
	Post          *Post  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CompanyDomain string `gorm:"size:253;not null" json:"company_domain"`
	AnonymousID   string `gorm:"size:16;not null" json:"anonymous_id"`
	Content       string `gorm:"type:text;not null" json:"content"`
	// LikeCount is not persisted; computed at query time
	LikeCount int       `gorm:"->;-:migration" json:"like_count"`
	Liked     bool      `gorm:"-" json:"liked"`
	CreatedAt time.Time `gorm:"not null;index:idx_comments_post_created,priority:2" json:"created_at"`
}
