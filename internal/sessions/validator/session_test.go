package validator

import (
	"strings"
	"testing"
	"time"

	"keyring/pkg/logger"
	"keyring/pkg/model"
)

func newTestValidator() *SessionValidator {
	return NewSessionValidator(logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	}))
}

func TestValidateCheckout(t *testing.T) {
	v := newTestValidator()

	valid := &model.CheckoutRequest{
		ToolID:          "68b0000000000000000000aa",
		Holder:          "casey@example.com",
		DurationMinutes: 60,
	}
	if err := v.ValidateCheckout(valid); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		req  *model.CheckoutRequest
		want string
	}{
		{
			name: "malformed tool id",
			req:  &model.CheckoutRequest{ToolID: "not-hex", Holder: "casey@example.com", DurationMinutes: 60},
			want: "ToolID",
		},
		{
			name: "missing holder",
			req:  &model.CheckoutRequest{ToolID: "68b0000000000000000000aa", DurationMinutes: 60},
			want: "Holder",
		},
		{
			name: "holder not an email",
			req:  &model.CheckoutRequest{ToolID: "68b0000000000000000000aa", Holder: "not-an-email", DurationMinutes: 60},
			want: "Holder",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateCheckout(tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidateSession_EndMustFollowStart(t *testing.T) {
	v := newTestValidator()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &model.Session{
		ToolID:          "68b0000000000000000000aa",
		Holder:          "casey@example.com",
		Status:          model.SessionStatusActive,
		StartTime:       start,
		ExpectedEndTime: start.Add(-time.Hour),
	}

	err := v.ValidateSession(session)
	if err == nil {
		t.Fatal("expected validation error for end before start")
	}
	if !strings.Contains(err.Error(), "ExpectedEndTime") {
		t.Errorf("expected ExpectedEndTime error, got: %v", err)
	}
}

func TestValidateSession_StatusEnum(t *testing.T) {
	v := newTestValidator()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &model.Session{
		ToolID:          "68b0000000000000000000aa",
		Holder:          "casey@example.com",
		Status:          "PAUSED",
		StartTime:       start,
		ExpectedEndTime: start.Add(time.Hour),
	}

	err := v.ValidateSession(session)
	if err == nil {
		t.Fatal("expected validation error for unknown status")
	}
	if !strings.Contains(err.Error(), "Status") {
		t.Errorf("expected Status error, got: %v", err)
	}
}
