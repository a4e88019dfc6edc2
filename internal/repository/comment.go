package repository

import (
	"context"
	"errors"

	"anonfeed/internal/models"
	"anonfeed/internal/observability"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	// Create inserts comment if its post exists, otherwise it returns ErrTargetNotFound
	// and writes nothing. Claims behave as in PostRepository.Create. A fresh comment
	// comes back with Post holding the parent's id and company domain.
	Create(ctx context.Context, comment *models.Comment, claim *IdempotencyClaim) (created *models.Comment, replayed bool, err error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]*models.Comment, error)
}

type commentRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, log: observability.NewRepoLogger("comments")}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment, claim *IdempotencyClaim) (*models.Comment, bool, error) {
	defer observability.TrackQuery("create", "comments")()

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
		ref, err := lookupTarget(tx, models.TargetPost, comment.PostID)
		if err != nil {
			return err
		}
		if err := tx.Omit("Post").Create(comment).Error; err != nil {
			return err
		}
		comment.Post = &models.Post{ID: ref.PostID, CompanyDomain: ref.CompanyDomain}
		if claim != nil {
			return recordClaim(tx, claim.KeyHash, models.TargetComment, comment.ID, comment.CreatedAt)
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
		if !errors.Is(err, ErrTargetNotFound) {
			r.log.LogError(ctx, err, "create")
		}
		return nil, false, err
	}

	if replayedID != "" {
		existing, err := r.GetByID(ctx, replayedID)
		return existing, true, err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": comment.ID, "post_id": comment.PostID})
	return comment, false, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	defer observability.TrackQuery("get", "comments")()

	var comment models.Comment
	if err := applyCommentDetails(r.db.WithContext(ctx)).Where("comments.id = ?", id).Take(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	defer observability.TrackQuery("list", "comments")()

	comments := make([]*models.Comment, 0)
	err := applyCommentDetails(r.db.WithContext(ctx)).
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Find(&comments).Error
	return comments, err
}

func applyCommentDetails(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Comment{}).Select("comments.*, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.target_type = 'comment' AND likes.target_id = comments.id) AS like_count")
}
