package interfaces

import "github.com/elmyly/whaty/internal/entities"

// UserStore is the user record persistence consumed by the usecases layer.
type UserStore interface {
	Create(user *entities.User) error
	GetByEmail(email string) (*entities.User, error)
	GetByID(id int) (*entities.User, error)
	UpdateQuota(id, quotaLimit, quotaUsed int) error
}
