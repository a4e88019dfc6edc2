package repository

import (
	"context"
	"errors"

	"anonfeed/internal/models"
	"anonfeed/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository stores likes on posts and comments.
type LikeRepository interface {
	// Toggle flips like.AnonymousID's like on the target and returns the new state with
	// the count read inside the same transaction. like.ID and like.CreatedAt are used
	// only when a row is inserted. Duplicate toggles from separate processes are not
	// collapsed: both may observe no existing row and report liked=true, while the
	// unique index still keeps a single like.
	Toggle(ctx context.Context, like *models.Like) (ToggleOutcome, error)
	// LikedTargetIDs returns the subset of targetIDs liked by anonymousID.
	LikedTargetIDs(ctx context.Context, targetType, anonymousID string, targetIDs []string) (map[string]bool, error)
}

// ToggleOutcome is a toggle result plus where the target lives, for cache scoping.
type ToggleOutcome struct {
	models.ToggleResult
	// CompanyDomain is the domain of the feed showing the target, the post's domain
	// for both post and comment likes.
	CompanyDomain string
	// PostID is the liked post, or the post a liked comment belongs to.
	PostID string
}

type likeRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewLikeRepository creates a new LikeRepository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db, log: observability.NewRepoLogger("likes")}
}

func (r *likeRepository) Toggle(ctx context.Context, like *models.Like) (ToggleOutcome, error) {
	defer observability.TrackQuery("toggle", "likes")()

	var result ToggleOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ref, err := lookupTarget(tx, like.TargetType, like.TargetID)
		if err != nil {
			return err
		}
		result.CompanyDomain, result.PostID = ref.CompanyDomain, ref.PostID

		del := tx.Where("target_type = ? AND target_id = ? AND anonymous_id = ?",
			like.TargetType, like.TargetID, like.AnonymousID).
			Delete(&models.Like{})
		if del.Error != nil {
			return del.Error
		}

		if del.RowsAffected == 0 {
			// A concurrent toggle may have inserted the same row; the unique index keeps one.
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error; err != nil {
				return err
			}
			result.Liked = true
		}

		count, err := countLikes(tx, like.TargetType, like.TargetID)
		if err != nil {
			return err
		}
		result.LikeCount = count
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTargetNotFound) {
			r.log.LogError(ctx, err, "toggle")
		}
		return ToggleOutcome{}, err
	}
	return result, nil
}

func (r *likeRepository) LikedTargetIDs(ctx context.Context, targetType, anonymousID string, targetIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(targetIDs))
	if anonymousID == "" || len(targetIDs) == 0 {
		return liked, nil
	}
	defer observability.TrackQuery("liked_ids", "likes")()

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("target_type = ? AND anonymous_id = ? AND target_id IN ?", targetType, anonymousID, targetIDs).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func countLikes(db *gorm.DB, targetType, targetID string) (int, error) {
	var count int64
	err := db.Model(&models.Like{}).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Count(&count).Error
	return int(count), err
}

type targetRef struct {
	CompanyDomain string
	PostID        string
}

// lookupTarget returns ErrTargetNotFound unless the post or comment row is present.
func lookupTarget(tx *gorm.DB, targetType, targetID string) (targetRef, error) {
	var q *gorm.DB
	switch targetType {
	case models.TargetPost:
		q = tx.Table("posts").Select("posts.company_domain, posts.id AS post_id").
			Where("posts.id = ?", targetID)
	case models.TargetComment:
		q = tx.Table("comments").Select("posts.company_domain, comments.post_id").
			Joins("JOIN posts ON posts.id = comments.post_id").
			Where("comments.id = ?", targetID)
	default:
		return targetRef{}, ErrTargetNotFound
	}

	var refs []targetRef
	if err := q.Limit(1).Scan(&refs).Error; err != nil {
		return targetRef{}, err
	}
	if len(refs) == 0 {
		return targetRef{}, ErrTargetNotFound
	}
	return refs[0], nil
}
