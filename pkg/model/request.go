package model

// CheckoutRequest asks for one seat on a tool. The holder comes from
// the caller identity middleware, not the body, so a client cannot
// check out on someone else's behalf.
type CheckoutRequest struct {
	ToolID          string `json:"tool_id" validate:"required,mongodb"`
	Holder          string `json:"-" validate:"required,email"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=1"`
}

// ReturnRequest releases every active seat the holder has on a tool.
type ReturnRequest struct {
	ToolID string `json:"tool_id" validate:"required,mongodb"`
	Holder string `json:"-" validate:"required,email"`
}

// CheckoutResponse is the only place plaintext credentials ever leave
// the service.
type CheckoutResponse struct {
	Session     *Session     `json:"session"`
	Credentials *Credentials `json:"credentials"`
	LoginURL    string       `json:"login_url,omitempty"`
}
