package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

func setupUserRepo(t *testing.T) (UserRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return NewUserRepository(db), db
}

func createUser(t *testing.T, db *gorm.DB, name, email, role string) *models.User {
	t.Helper()
	u, err := models.CreateUser(name, email, "secret123")
	require.NoError(t, err)
	u.Role = role
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestUserRepository_Lookups(t *testing.T) {
	repo, db := setupUserRepo(t)
	alice := createUser(t, db, "alice", "alice@example.com", models.ROLE_USER)

	got, err := repo.GetByEmail(" Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = repo.GetByEmail("nobody@example.com")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUserRepository_GetByAPIKeyHash(t *testing.T) {
	repo, db := setupUserRepo(t)
	alice := createUser(t, db, "alice", "alice@example.com", models.ROLE_USER)
	createUser(t, db, "bobby", "bob@example.com", models.ROLE_USER)

	key, err := alice.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repo.Update(alice))

	got, err := repo.GetByAPIKeyHash(models.HashAPIKey(key))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	// users without a key must never match the empty hash
	_, err = repo.GetByAPIKeyHash("")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.GetByAPIKeyHash(models.HashAPIKey("amk_unknown"))
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUserRepository_CountByRole(t *testing.T) {
	repo, db := setupUserRepo(t)
	createUser(t, db, "alice", "alice@example.com", models.ROLE_USER)
	createUser(t, db, "bobby", "bob@example.com", models.ROLE_PREMIUM)
	createUser(t, db, "carol", "carol@example.com", models.ROLE_PREMIUM)
	createUser(t, db, "admin", "admin@example.com", models.ROLE_ADMIN)

	counts, err := repo.CountByRole()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.ROLE_USER])
	assert.Equal(t, int64(2), counts[models.ROLE_PREMIUM])
	assert.Equal(t, int64(1), counts[models.ROLE_ADMIN])

	total, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}
