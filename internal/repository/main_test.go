package repository

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"anonfeed/internal/database"
	"anonfeed/internal/idgen"
	"anonfeed/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// newTestDB returns a private in-memory SQLite store with the schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLiteMemory(fmt.Sprintf("%s_%d", name, dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

type fixtures struct {
	t   *testing.T
	ids *idgen.Generator
	now time.Time
}

func newFixtures(t *testing.T) *fixtures {
	ids, err := idgen.New(1)
	require.NoError(t, err)
	return &fixtures{t: t, ids: ids, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// tick advances the fixture clock so successive rows get distinct timestamps.
func (f *fixtures) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fixtures) post(domain, anonID, content string) *models.Post {
	at := f.tick()
	return &models.Post{
		ID:            f.ids.ULID(at),
		CompanyDomain: domain,
		AnonymousID:   anonID,
		Content:       content,
		CreatedAt:     at,
	}
}

func (f *fixtures) comment(post *models.Post, anonID, content string) *models.Comment {
	at := f.tick()
	return &models.Comment{
		ID:            f.ids.ULID(at),
		PostID:        post.ID,
		CompanyDomain: post.CompanyDomain,
		AnonymousID:   anonID,
		Content:       content,
		CreatedAt:     at,
	}
}

func (f *fixtures) like(targetType, targetID, anonID string) *models.Like {
	return &models.Like{
		ID:            f.ids.RowID(),
		TargetType:    targetType,
		TargetID:      targetID,
		AnonymousID:   anonID,
		CompanyDomain: "tech.com",
		CreatedAt:     f.tick(),
	}
}
