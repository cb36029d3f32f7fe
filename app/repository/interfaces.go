package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Count() (int64, error)
	CountByRole() (map[string]int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
	}
}
