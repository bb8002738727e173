package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeforeLedgerSurvivesWrapping(t *testing.T) {
	require.NoError(t, BeforeLedger(nil))

	cause := Lookupf("no account 6100")
	err := fmt.Errorf("compensate previous posting: %w", BeforeLedger(cause))
	require.True(t, IsBeforeLedger(err))
	require.ErrorIs(t, err, ErrLookup)
	require.Equal(t, "compensate previous posting: "+cause.Error(), err.Error())

	marked := BeforeLedger(cause)
	require.Same(t, marked, BeforeLedger(marked))

	require.False(t, IsBeforeLedger(cause))
	require.False(t, IsBeforeLedger(errors.Join(cause, ErrFinalize)))
}
