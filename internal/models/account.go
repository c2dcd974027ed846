package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record owned by the identity service. The engine only reads it.
type User struct {
	gorm.Model
	Name  string `gorm:"not null"`
	Email string `gorm:"uniqueIndex;not null"`
	Role  string `gorm:"type:varchar(16);not null;default:user"`
}

// Plan is a purchasable challenge tier from the plan catalog.
type Plan struct {
	gorm.Model
	Slug         string          `gorm:"uniqueIndex;not null"`
	Name         string          `gorm:"not null"`
	Fee          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	StartBalance decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	FeaturesJSON string          `gorm:"type:text"`
}

// Features decodes the feature list; malformed JSON yields an empty list.
func (p Plan) Features() []string {
	var out []string
	if p.FeaturesJSON == "" {
		return out
	}
	_ = json.Unmarshal([]byte(p.FeaturesJSON), &out)
	return out
}
