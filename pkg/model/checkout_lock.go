package model

import "time"

// CheckoutLock is an advisory per-tool lock held across the checkout
// count-then-insert sequence. The unique _id makes acquisition a single
// conditional insert; expires_at is TTL-indexed so a crashed holder
// cannot wedge a tool.
type CheckoutLock struct {
	ID        string    `bson:"_id" json:"id"`
	ToolID    string    `bson:"tool_id" json:"tool_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
