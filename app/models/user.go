package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER    = "USER"
	ROLE_PREMIUM = "PREMIUM"
	ROLE_ADMIN   = "ADMIN"
)

type User struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	Name                 string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email                string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password             string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role                 string         `gorm:"type:varchar(20);default:'USER';index" json:"role" validate:"oneof=USER PREMIUM ADMIN"`
	ExternalCustomerID   *string        `gorm:"type:varchar(191);uniqueIndex" json:"external_customer_id,omitempty"`
	ActiveSubscriptionID *string        `gorm:"type:varchar(191);index" json:"active_subscription_id,omitempty"`
	APIKeyHash           string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix         string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt      *time.Time     `json:"api_key_created_at,omitempty"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "amk_"

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NormalizeEmail is the stored and looked-up form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BeforeSave keeps emails normalized on every create and save.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     username,
		Email:    NormalizeEmail(email),
		Password: pw,
		Role:     ROLE_USER,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// IsAdmin reports whether the user holds the admin role. Billing never changes it.
func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// IsPremium reports whether the user currently holds the premium entitlement.
func (u *User) IsPremium() bool {
	return u.Role == ROLE_PREMIUM
}

// HasActiveSubscription returns true if the user points at a subscription row.
func (u *User) HasActiveSubscription() bool {
	return u.ActiveSubscriptionID != nil && *u.ActiveSubscriptionID != ""
}

// IsLinkedTo reports whether the user is already linked to the given provider customer.
func (u *User) IsLinkedTo(customerID string) bool {
	return u.ExternalCustomerID != nil && *u.ExternalCustomerID == customerID
}

// IssueAPIKey generates a new API key, stores its hash on the struct and returns the raw secret.
// Callers must persist the user afterwards.
func (u *User) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 16 {
		return "", fmt.Errorf("api key generation failed: key too short")
	}
	now := time.Now()
	u.APIKeyHash = HashAPIKey(rawKey)
	u.APIKeyPrefix = rawKey[:16]
	u.APIKeyCreatedAt = &now
	return rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
