package database

import "anonfeed/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.IdempotencyRecord{},
	}
}
