package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToKeyNormalisesMixedIdentifiers(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{in: "A1", want: "A1"},
		{in: "  42 ", want: "42"},
		{in: 42, want: "42"},
		{in: int64(42), want: "42"},
		{in: float64(42), want: "42"},
		{in: json.Number("42"), want: "42"},
		{in: json.Number("42.0"), want: "42"},
		{in: 1.5, want: "1.5"},
		{in: nil, want: ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToKey(tc.in), "input %#v", tc.in)
	}
	require.Equal(t, ToKey(501), ToKey("501"))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("900")
	require.NoError(t, err)
	require.EqualValues(t, 900, id)

	_, err = ParseID("abc")
	require.ErrorIs(t, err, ErrValidation)
}

func TestOrderErrorWrapping(t *testing.T) {
	base := fmt.Errorf("lookup: %w", ErrLookup)
	err := WrapOrder("A1", "FAILURE", base)
	require.ErrorIs(t, err, ErrLookup)
	require.Contains(t, err.Error(), "A1")

	var oe *OrderError
	require.True(t, errors.As(err, &oe))
	require.Equal(t, "FAILURE", oe.Type)

	require.Same(t, err, WrapOrder("A1", "FAILURE", err))
	require.NoError(t, WrapOrder("A1", "FAILURE", nil))
}

func TestRemoteErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create move: %w", &RemoteError{System: "ledger", Status: 502, Message: "bad gateway"})
	require.ErrorIs(t, err, ErrRemoteCall)
	require.Contains(t, err.Error(), "502")
}
