package models

import (
	"time"
)

// Like target types.
const (
	TargetPost    = "post"
	TargetComment = "comment"
)

// Like represents one identity's like on a post or comment.
// The combination of TargetType, TargetID and AnonymousID must be unique.
type Like struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TargetType    string    `gorm:"size:16;not null;uniqueIndex:idx_likes_target_identity,priority:1" json:"target_type"`
	TargetID      string    `gorm:"size:26;not null;uniqueIndex:idx_likes_target_identity,priority:2" json:"target_id"`
	AnonymousID   string    `gorm:"size:16;not null;uniqueIndex:idx_likes_target_identity,priority:3" json:"anonymous_id"`
	CompanyDomain string    `gorm:"size:253;not null" json:"company_domain"`
	CreatedAt     time.Time `json:"created_at"`
}

// IdempotencyRecord maps a hashed client idempotency key onto the resource it created.
type IdempotencyRecord struct {
	KeyHash      string    `gorm:"primaryKey;size:64" json:"-"`
	ResourceType string    `gorm:"size:16;not null" json:"resource_type"`
	ResourceID   string    `gorm:"size:26;not null" json:"resource_id"`
	CreatedAt    time.Time `json:"created_at"`
}
