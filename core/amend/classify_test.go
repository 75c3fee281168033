package amend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEjectionPolicyMatches(t *testing.T) {
	policy := NewEjectionPolicy()

	cases := []struct {
		text    string
		matched bool
	}{
		{"Male EJECTED from north gate", true},
		{"two persons escorted out by response team", true},
		{"subject removed from the venue at 21:14", true},
		{"individual banned for the remainder of the event", true},
		{"spoke to steward, no further action", false},
		{"reject ticket at turnstile", false},
		{"", false},
	}
	for _, tc := range cases {
		category, ok := policy.Classify(tc.text)
		require.Equal(t, tc.matched, ok, "text %q", tc.text)
		if tc.matched {
			require.Equal(t, EjectionCategory, category)
		}
	}
}

func TestEjectionPolicyDeterministic(t *testing.T) {
	policy := NewEjectionPolicy()
	const text = "Person escorted off site following altercation"
	first, ok1 := policy.Classify(text)
	second, ok2 := policy.Classify(text)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, first, second)
}
