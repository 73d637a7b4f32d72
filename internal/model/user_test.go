package model

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleLeader, true},
		{RoleAdmin, RoleUser, true},
		{RoleLeader, RoleAdmin, false},
		{RoleLeader, RoleLeader, true},
		{RoleLeader, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleLeader, false},
		{RoleUser, RoleUser, true},
		// Unknown roles fail-closed.
		{"unknown", RoleUser, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
		{"", RoleUser, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestEffectiveRole(t *testing.T) {
	tests := []struct {
		actual   []string
		override string
		expected string
	}{
		{[]string{RoleUser}, "", RoleUser},
		{[]string{RoleUser, RoleLeader}, "", RoleLeader},
		{[]string{RoleAdmin, RoleLeader}, "", RoleAdmin},
		// Override can lower privilege.
		{[]string{RoleAdmin}, RoleUser, RoleUser},
		{[]string{RoleAdmin}, RoleLeader, RoleLeader},
		// Override can never raise it.
		{[]string{RoleUser}, RoleAdmin, RoleUser},
		{[]string{RoleLeader}, RoleAdmin, RoleLeader},
		// Garbage is ignored.
		{[]string{RoleLeader}, "root", RoleLeader},
		{[]string{"bogus"}, RoleAdmin, ""},
		{nil, "", ""},
	}

	for _, tt := range tests {
		got := EffectiveRole(tt.actual, tt.override)
		if got != tt.expected {
			t.Errorf("EffectiveRole(%v, %q) = %q, want %q", tt.actual, tt.override, got, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}
