package database

import (
	"testing"

	"anonfeed/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesFeedTables(t *testing.T) {
	var post, comment, like, idem bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *models.Post:
			post = true
		case *models.Comment:
			comment = true
		case *models.Like:
			like = true
		case *models.IdempotencyRecord:
			idem = true
		}
	}
	require.True(t, post && comment && like && idem, "PersistentModels should include every feed table")
}
