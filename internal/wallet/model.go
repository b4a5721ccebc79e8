package wallet

import (
	"fmt"
	"time"
)

const (
	// challengeDomain is baked into every challenge message so a signature
	// captured here cannot be replayed against another deployment.
	challengeDomain = "dimsum-app.com"

	// nonceLifetime bounds how long an issued challenge stays signable.
	nonceLifetime = 5 * time.Minute

	// nonceByteLength is the entropy of the random token (32 bytes, hex encoded).
	nonceByteLength = 32
)

// Nonce is a single-use wallet-binding challenge. Created by the registry,
// consumed exactly once during bind, and garbage-collected lazily the next
// time the same user requests a challenge.
type Nonce struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index"`
	Nonce     string    `gorm:"column:nonce;size:64;not null;uniqueIndex"`
	Message   string    `gorm:"column:message;type:text;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	Used      bool      `gorm:"column:used;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Nonce) TableName() string {
	return "wallet_nonces"
}

// Challenge is the triple handed back to the client for off-box signing.
type Challenge struct {
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// challengeMessage renders the exact human-readable string the wallet must
// sign. The nonce, issue timestamp, user id and domain tag are all embedded
// so the signature binds to this request and nothing else.
func challengeMessage(nonce string, issuedAt time.Time, userID string) string {
	return fmt.Sprintf(
		"Bind wallet to DimSum account\nNonce: %s\nTimestamp: %d\nUser ID: %s\nDomain: %s",
		nonce, issuedAt.UnixMilli(), userID, challengeDomain,
	)
}
