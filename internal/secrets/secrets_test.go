package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Bundle(ctx context.Context) (Bundle, error) {
	p.calls.Add(1)
	if p.err != nil {
		return Bundle{}, p.err
	}
	return validBundle(), nil
}

func validBundle() Bundle {
	return Bundle{
		Field:  FieldCredentials{APIToken: "tok"},
		Ledger: LedgerCredentials{Database: "prod", Login: "sync", Password: "pw"},
	}
}

func TestCachedFetchesOnceForProcessLifetime(t *testing.T) {
	src := &countingProvider{}
	cached := NewCached(src, 0)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := cached.Bundle(context.Background())
			tokens[i], errs[i] = b.Field.APIToken, err
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
		require.Equal(t, "tok", tokens[i])
	}
	_, err := cached.Bundle(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())
	require.True(t, cached.Expiry().IsZero())
}

func TestCachedRefetchesAfterTTL(t *testing.T) {
	src := &countingProvider{}
	cached := NewCached(src, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	_, err := cached.Bundle(context.Background())
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = cached.Bundle(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())

	now = now.Add(time.Minute)
	_, err = cached.Bundle(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	src := &countingProvider{err: errors.New("vault down")}
	cached := NewCached(src, 0)
	_, err := cached.Bundle(context.Background())
	require.Error(t, err)
	src.err = nil
	_, err = cached.Bundle(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"field":{"api_token":"abc"},"ledger":{"database":"db","login":"u","password":"p"}}`), 0o600))

	b, err := FileProvider{Path: path}.Bundle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", b.Field.APIToken)
	require.Equal(t, "db", b.Ledger.Database)

	require.NoError(t, os.WriteFile(path, []byte(`{"field":{}}`), 0o600))
	_, err = FileProvider{Path: path}.Bundle(context.Background())
	require.Error(t, err)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("FIELD_API_TOKEN", "env-token")
	t.Setenv("LEDGER_DATABASE", "erp")
	t.Setenv("LEDGER_LOGIN", "bot")
	t.Setenv("LEDGER_PASSWORD", "secret")

	b, err := EnvProvider{}.Bundle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "env-token", b.Field.APIToken)
	require.Equal(t, "bot", b.Ledger.Login)
}
