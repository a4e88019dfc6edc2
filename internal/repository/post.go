// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"anonfeed/internal/models"
	"anonfeed/internal/observability"

	"gorm.io/gorm"
)

// IdempotencyClaim ties a create to a hashed client key.
type IdempotencyClaim struct {
	KeyHash string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	// Create inserts post. With a claim, a key seen before returns the post it
	// created and replayed=true, and nothing is inserted.
	Create(ctx context.Context, post *models.Post, claim *IdempotencyClaim) (created *models.Post, replayed bool, err error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	// List returns a page of posts, all domains when domain is empty.
	List(ctx context.Context, domain string, sort models.SortMode, page models.Page) ([]*models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, log: observability.NewRepoLogger("posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post, claim *IdempotencyClaim) (*models.Post, bool, error) {
	defer observability.TrackQuery("create", "posts")()

	var replayedID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if claim != nil {
			id, found, err := lookupClaim(tx, claim.KeyHash)
			if err != nil {
				return err
			}
			if found {
				replayedID = id
				return nil
			}
		}
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if claim != nil {
			return recordClaim(tx, claim.KeyHash, models.TargetPost, post.ID, post.CreatedAt)
		}
		return nil
	})
	if errors.Is(err, errIdempotencyRace) {
		id, found, lookupErr := lookupClaim(r.db.WithContext(ctx), claim.KeyHash)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if !found {
			return nil, false, err
		}
		replayedID, err = id, nil
	}
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return nil, false, err
	}

	if replayedID != "" {
		existing, err := r.GetByID(ctx, replayedID)
		return existing, true, err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": post.ID, "company_domain": post.CompanyDomain})
	return post, false, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()

	var post models.Post
	if err := applyPostDetails(r.db.WithContext(ctx)).Where("posts.id = ?", id).Take(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, domain string, sort models.SortMode, page models.Page) ([]*models.Post, error) {
	defer observability.TrackQuery("list", "posts")()

	base := applyPostDetails(r.db.WithContext(ctx))
	if domain != "" {
		base = base.Where("posts.company_domain = ?", domain)
	}

	posts := make([]*models.Post, 0, page.Limit)
	err := applySort(base, sort).
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// applySort appends the ORDER BY clause for the requested sort mode. like_count is
// a SELECT alias from applyPostDetails; ids break ties because ULIDs follow insertion order.
func applySort(db *gorm.DB, sort models.SortMode) *gorm.DB {
	switch sort {
	case models.SortTop:
		return db.Order("like_count DESC").Order("posts.created_at DESC").Order("posts.id DESC")
	default:
		return db.Order("posts.created_at DESC").Order("posts.id DESC")
	}
}

// applyPostDetails adds subqueries that derive like and comment counts in a single query.
func applyPostDetails(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Post{}).Select("posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.target_type = 'post' AND likes.target_id = posts.id) AS like_count")
}

func lookupClaim(tx *gorm.DB, keyHash string) (string, bool, error) {
	var rec models.IdempotencyRecord
	err := tx.Where("key_hash = ?", keyHash).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

func recordClaim(tx *gorm.DB, keyHash, resourceType, resourceID string, at time.Time) error {
	rec := models.IdempotencyRecord{
		KeyHash:      keyHash,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    at,
	}
	if err := tx.Create(&rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return errIdempotencyRace
		}
		return err
	}
	return nil
}
