package model

import "time"

// Tool is a catalog entry for a shared resource with a fixed number of
// concurrent seats. Credentials are stored sealed and are only released
// through a successful checkout.
type Tool struct {
	ID                string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name              string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Capacity          int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=500"`
	SealedCredentials string    `json:"-" bson:"sealed_credentials"`
	LoginURL          string    `json:"login_url,omitempty" bson:"login_url" validate:"omitempty,url,max=2048"`
	IconURL           string    `json:"icon_url,omitempty" bson:"icon_url" validate:"omitempty,url,max=2048"`
	CreatedAt         time.Time `json:"created_at,omitempty" bson:"created_at" validate:"omitempty"`
}

// Credentials is the plaintext payload returned to a holder at checkout.
type Credentials struct {
	Username string `json:"username" validate:"required,min=1,max=200"`
	Password string `json:"password" validate:"required,min=1,max=200"`
}

// ToolView is a Tool joined with its live seat usage for listings.
// It never carries credentials.
type ToolView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Capacity       int    `json:"capacity"`
	LoginURL       string `json:"login_url,omitempty"`
	IconURL        string `json:"icon_url,omitempty"`
	ActiveSessions int    `json:"active_sessions"`
	AvailableSeats int    `json:"available_seats"`
	IHaveKey       bool   `json:"i_have_key"`
}
