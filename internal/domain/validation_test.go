package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSyncIdentity(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "v4", id: "550e8400-e29b-41d4-a716-446655440000", wantErr: false},
		{name: "v5", id: "886313e1-3b8a-5372-9b90-0c9aee199e5d", wantErr: false},
		{name: "uppercase", id: "550E8400-E29B-41D4-A716-446655440000", wantErr: true},
		{name: "braced", id: "{550e8400-e29b-41d4-a716-446655440000}", wantErr: true},
		{name: "no hyphens", id: "550e8400e29b41d4a716446655440000", wantErr: true},
		{name: "empty", id: "", wantErr: true},
		{name: "garbage", id: "alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSyncIdentity(tt.id)
			if tt.wantErr && err == nil {
				t.Error("ValidateSyncIdentity() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSyncIdentity() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "simple", username: "alice", wantErr: false},
		{name: "suffixed", username: "alice_2", wantErr: false},
		{name: "unicode", username: "zoë", wantErr: false},
		{name: "empty", username: "", wantErr: true},
		{name: "blank", username: "   ", wantErr: true},
		{name: "too long", username: strings.Repeat("a", MaxUsernameLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr && err == nil {
				t.Error("ValidateUsername() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateUsername() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateResourceType(t *testing.T) {
	for _, rt := range []string{"user", "post", "comment", "like", "snapshot"} {
		if err := ValidateResourceType(rt); err != nil {
			t.Errorf("ValidateResourceType(%q) unexpected error: %v", rt, err)
		}
	}
	for _, rt := range []string{"", "task", "Post"} {
		if err := ValidateResourceType(rt); err == nil {
			t.Errorf("ValidateResourceType(%q) expected error, got nil", rt)
		}
	}
}

func TestValidateTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "store default", input: "2025-03-01T09:30:00Z", wantErr: false},
		{name: "legacy sqlite", input: "2025-03-01 09:30:00", wantErr: false},
		{name: "offset", input: "2025-03-01T09:30:00+02:00", wantErr: false},
		{name: "fractional", input: "2025-03-01T09:30:00.123456", wantErr: false},
		{name: "date only", input: "2025-03-01", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTimestamp(tt.input)
			if tt.wantErr && err == nil {
				t.Error("ValidateTimestamp() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateTimestamp() unexpected error: %v", err)
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	var err error = &NotFoundError{Resource: ResourcePost, ID: 7}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatal("errors.As should match *NotFoundError")
	}
	if nf.ID != 7 {
		t.Errorf("ID = %d, want 7", nf.ID)
	}
	if err.Error() != "post not found: 7" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestUserHelpers(t *testing.T) {
	u := &User{Username: "alice"}
	if u.HasIdentity() {
		t.Error("user without sync_uuid should not have identity")
	}

	u.SyncUUID = StringPtr("550e8400-e29b-41d4-a716-446655440000")
	if !u.HasIdentity() {
		t.Error("user with sync_uuid should have identity")
	}

	if u.IsPlaceholder() {
		t.Error("regular user should not be a placeholder")
	}
	u.Bio = StringPtr(PlaceholderBio)
	if !u.IsPlaceholder() {
		t.Error("user with placeholder bio should be a placeholder")
	}

	if StringPtr("") != nil {
		t.Error("StringPtr(\"\") should be nil")
	}
	if StringValue(nil) != "" {
		t.Error("StringValue(nil) should be empty")
	}
}
