package eval

import (
	"testing"
	"time"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"login", "login"},
		{"/login", "login"},
		{"/#/Login?next=students", "login"},
		{"#/students/", "students"},
		{"  /payments  ", "payments"},
		{"/students/42", "students/42"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRoute(tt.in); got != tt.want {
			t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEligible(t *testing.T) {
	excluded := []string{"login", "/register"}

	if !Eligible(true, "/students", excluded) {
		t.Errorf("expected active session on students to be eligible")
	}
	if Eligible(false, "/students", excluded) {
		t.Errorf("expected inactive session to be ineligible")
	}
	if Eligible(true, "#/Register", excluded) {
		t.Errorf("expected excluded route to be ineligible regardless of session")
	}
	if Eligible(true, "/login?expired=1", excluded) {
		t.Errorf("expected login with query to be excluded")
	}
}

func TestDeadlines(t *testing.T) {
	from := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	warnAt, expireAt := Deadlines(from, 40*time.Minute, 5*time.Minute)

	if !warnAt.Equal(from.Add(35 * time.Minute)) {
		t.Errorf("warnAt = %v, want %v", warnAt, from.Add(35*time.Minute))
	}
	if !expireAt.Equal(from.Add(40 * time.Minute)) {
		t.Errorf("expireAt = %v, want %v", expireAt, from.Add(40*time.Minute))
	}
	if expireAt.Sub(warnAt) != 5*time.Minute {
		t.Errorf("lead = %v, want 5m", expireAt.Sub(warnAt))
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	if got := Remaining(now.Add(3*time.Minute), now); got != 3*time.Minute {
		t.Errorf("Remaining = %v, want 3m", got)
	}
	if got := Remaining(now.Add(-time.Second), now); got != 0 {
		t.Errorf("Remaining past deadline = %v, want 0", got)
	}
	if got := Remaining(time.Time{}, now); got != 0 {
		t.Errorf("Remaining without deadline = %v, want 0", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Minute, "5 minute(s)"},
		{4*time.Minute + 10*time.Second, "5 minute(s)"},
		{90 * time.Minute, "1 hour(s) 30 minute(s)"},
		{0, "less than a minute"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.in); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
