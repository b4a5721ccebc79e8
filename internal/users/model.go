package users

import (
	"fmt"
	"strings"
	"time"
)

// Role enumerates the closed set of account roles.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "USER"
	// RoleTaggerPartner marks partner annotators on the miniprogram surface.
	RoleTaggerPartner Role = "TAGGER_PARTNER"
	// RoleTaggerOutsourcing marks outsourced annotators on the miniprogram surface.
	RoleTaggerOutsourcing Role = "TAGGER_OUTSOURCING"
)

// ParseRole validates raw input against the closed role set.
func ParseRole(rawInput string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case RoleUser:
		return RoleUser, nil
	case RoleTaggerPartner:
		return RoleTaggerPartner, nil
	case RoleTaggerOutsourcing:
		return RoleTaggerOutsourcing, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, rawInput)
	}
}

// TaggerRoles returns the roles allowed onto the annotation surface.
func TaggerRoles() []Role {
	return []Role{RoleTaggerPartner, RoleTaggerOutsourcing}
}

// User models a registered account. Wallet binding writes eth_address, the
// refresh flow writes token_generation; nothing in this service deletes rows.
type User struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name            string    `gorm:"column:name;size:190"`
	AvatarURL       string    `gorm:"column:avatar_url;size:512"`
	UnionID         *string   `gorm:"column:union_id;size:190;uniqueIndex"`
	EthAddress      *string   `gorm:"column:eth_address;size:42;uniqueIndex"`
	Role            Role      `gorm:"column:role;size:32;not null;default:USER"`
	IsSystemAdmin   bool      `gorm:"column:is_system_admin;not null;default:false"`
	TokenGeneration int64     `gorm:"column:token_generation;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Profile is the read-only projection returned to authenticated clients.
type Profile struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	AvatarURL     string  `json:"avatar"`
	Role          Role    `json:"role"`
	IsSystemAdmin bool    `json:"is_system_admin"`
	EthAddress    *string `json:"eth_address,omitempty"`
}

// AsProfile converts the stored row into its client projection.
func (u User) AsProfile() Profile {
	return Profile{
		ID:            u.ID,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		Role:          u.Role,
		IsSystemAdmin: u.IsSystemAdmin,
		EthAddress:    u.EthAddress,
	}
}
