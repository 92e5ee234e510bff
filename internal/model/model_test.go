package model

import "testing"

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"PARENT", "ADMIN", "GUEST"} {
		r, err := ParseRole(s)
		if err != nil || r.String() != s {
			t.Fatalf("ParseRole(%q) = (%v, %v)", s, r, err)
		}
	}
	for _, s := range []string{"", "parent", "ROOT", "Parent"} {
		if _, err := ParseRole(s); err == nil {
			t.Fatalf("ParseRole(%q) should fail", s)
		}
	}
}
