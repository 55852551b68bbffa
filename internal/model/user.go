package model

import "time"

type Subscription string

const (
	SubscriptionFree    Subscription = "free"
	SubscriptionPremium Subscription = "premium"
)

type User struct {
	ID                    int64        `db:"id" json:"id"`
	Email                 string       `db:"email" json:"email"`
	Name                  *string      `db:"name" json:"name,omitempty"`
	PasswordHash          *string      `db:"password_hash" json:"-"`
	Provider              string       `db:"provider" json:"provider"`
	SubscriptionType      Subscription `db:"subscription_type" json:"subscription_type"`
	SubscriptionExpiresAt *time.Time   `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}
