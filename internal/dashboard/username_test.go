package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mapLookup struct {
	owners map[string]uint
	err    error
}

func (m mapLookup) UsernameTaken(_ context.Context, username string, excludeUserID uint) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	owner, ok := m.owners[username]
	return ok && owner != excludeUserID, nil
}

func TestValidateUsernameFormat(t *testing.T) {
	cases := map[string]bool{
		"ab":                    false,
		"abc":                   true,
		"a_b-c":                 true,
		"Ada99":                 true,
		strings.Repeat("x", 30): true,
		strings.Repeat("x", 31): false,
		"has space":             false,
		"dot.name":              false,
		"ünï":                   false,
		"":                      false,
	}
	for input, ok := range cases {
		err := ValidateUsernameFormat(input)
		if (err == nil) != ok {
			t.Errorf("ValidateUsernameFormat(%q) = %v, want ok=%v", input, err, ok)
		}
	}
}

func TestUsernameCheckerStatuses(t *testing.T) {
	checker := NewUsernameChecker(mapLookup{owners: map[string]uint{"ada": 1}}, nil)
	ctx := context.Background()

	cases := []struct {
		name      string
		userID    uint
		candidate string
		want      UsernameStatus
	}{
		{"too short", 2, "ad", UsernameInvalidFormat},
		{"taken by other", 2, "ada", UsernameTaken},
		{"own username", 1, "ada", UsernameAvailable},
		{"case differs", 2, "ADA", UsernameAvailable},
		{"free", 2, "grace", UsernameAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := checker.Check(ctx, tc.userID, tc.candidate)
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if got.Available() != (tc.want == UsernameAvailable) {
				t.Fatalf("Available() = %v", got.Available())
			}
		})
	}
}

func TestUsernameCheckerLookupFailure(t *testing.T) {
	checker := NewUsernameChecker(mapLookup{err: errors.New("connection reset")}, nil)

	got := checker.Check(context.Background(), 1, "grace")
	if got.Status != UsernameCheckFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Available() {
		t.Fatalf("a failed check must not report availability")
	}
}
