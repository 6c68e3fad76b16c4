// Package testutil holds shared helpers for package-level tests: an
// in-memory sqlite store built by the same RunMigrations the dev setup uses,
// a sqlmock-backed postgres dialector, and token minting for handler tests.
package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"farmacaixa/internal/infra"
	"farmacaixa/internal/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestJWTSecret signs every token minted by Token.
const TestJWTSecret = "test-secret-key"

// NewSQLiteDB opens a private in-memory database with the full schema.
// A single connection serialises transactions the way row locks do on postgres.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.RunMigrations(db), "failed to migrate sqlite schema")
	return db
}

// MockDB wraps a GORM postgres dialector over sqlmock.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a mock postgres database; expectations are verified on cleanup.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "failed to create sqlmock")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err, "failed to open gorm over sqlmock")

	m := &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet(), "unmet database expectations")
		_ = mockDB.Close()
	})
	return m
}

// Claims describes the caller a test token stands for.
type Claims struct {
	UserID     uuid.UUID
	Role       string
	LocationID string
}

// Token mints an HS256 bearer token accepted by middleware.JWTAuth(TestJWTSecret, "").
func Token(t *testing.T, c Claims) string {
	t.Helper()
	if c.UserID == uuid.Nil {
		c.UserID = uuid.New()
	}
	claims := middleware.JWTClaims{
		UserID:   c.UserID.String(),
		Username: "test-" + c.Role,
		Rol:      c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if c.LocationID != "" {
		loc := c.LocationID
		claims.LocationID = &loc
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	require.NoError(t, err)
	return signed
}
