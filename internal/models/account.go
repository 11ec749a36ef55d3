package models

import "time"

// AccountRole marks whether a tenant is the authoritative source of a sync
// group or one of its mirrors.
type AccountRole string

const (
	RoleMaster AccountRole = "master"
	RoleSlave  AccountRole = "slave"
)

// Account is one Kommo tenant known to the worker. The bearer token is a
// long-lived token supplied by the operator; the worker never refreshes it.
type Account struct {
	ID             int64       `gorm:"column:id;primaryKey"`
	Subdomain      string      `gorm:"column:subdomain;uniqueIndex"`
	BearerToken    string      `gorm:"column:bearer_token"`
	TokenExpiresAt *time.Time  `gorm:"column:token_expires_at"`
	Role           AccountRole `gorm:"column:role"`
	SyncGroupID    *int64      `gorm:"column:sync_group_id"`
	CreatedAt      time.Time   `gorm:"column:created_at"`
	UpdatedAt      time.Time   `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
