package model

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the read-side directory of operators, used to render display
// names in session history. Credentials live in the identity service.
// Role: "cashier" | "supervisor" | "admin" | "sales"
type Actor struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(200);not null"`
	Role        string    `gorm:"type:varchar(20);not null"`
	// LocationID restricts a cashier to a specific till; nil = all locations
	LocationID *string `gorm:"type:varchar(64)"`
	Active     bool    `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Actor) TableName() string { return "actors" }
