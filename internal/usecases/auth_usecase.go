package usecases

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/elmyly/whaty/internal/entities"
	"github.com/elmyly/whaty/internal/interfaces"
)

type AuthUsecase struct {
	userRepo     interfaces.UserStore
	jwtSecret    []byte
	defaultQuota int
}

func NewAuthUsecase(repo interfaces.UserStore, secret string, defaultQuota int) *AuthUsecase {
	return &AuthUsecase{
		userRepo:     repo,
		jwtSecret:    []byte(secret),
		defaultQuota: defaultQuota,
	}
}

func (uc *AuthUsecase) Register(email, password string) (*entities.User, error) {
	existing, err := uc.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.New("email already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Email:        email,
		PasswordHash: string(hashed),
		Role:         "user", // Default
		QuotaLimit:   uc.defaultQuota,
	}
	if err := uc.userRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *AuthUsecase) Login(email, password string) (string, error) {
	user, err := uc.userRepo.GetByEmail(email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.New("invalid credentials")
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return "", errors.New("invalid credentials")
	}

	// Generate JWT
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

// EnsureAdmin creates a root user if none exists (called on startup)
func (uc *AuthUsecase) EnsureAdmin(email, password string) error {
	user, err := uc.userRepo.GetByEmail(email)
	if err != nil {
		return err
	}
	if user == nil {
		hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		admin := &entities.User{
			Email:        email,
			PasswordHash: string(hashed),
			Role:         "admin",
			QuotaLimit:   uc.defaultQuota,
		}
		return uc.userRepo.Create(admin)
	}
	return nil
}
