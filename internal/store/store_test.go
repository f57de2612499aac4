package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/errkind"
)

func TestClassifyNotionErrMapsStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		want   errkind.Kind
		wantNo bool
	}{
		{"nil passes through", nil, "", true},
		{"401 unauthorized", &notionapi.Error{Status: 401}, errkind.AuthError, false},
		{"403 forbidden", &notionapi.Error{Status: 403}, errkind.AuthError, false},
		{"429 rate limited", &notionapi.Error{Status: 429}, errkind.RateLimited, false},
		{"500 internal error", &notionapi.Error{Status: 500}, errkind.Transient, false},
		{"503 unavailable", &notionapi.Error{Status: 503}, errkind.Transient, false},
		{"400 bad request falls to permanent", &notionapi.Error{Status: 400}, errkind.Permanent, false},
		{"non-notion error defaults transient", errors.New("dial tcp: connection refused"), errkind.Transient, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNotionErr(tc.err)
			if tc.wantNo {
				require.NoError(t, got)
				return
			}
			require.Error(t, got)
			require.Equal(t, tc.want, errkind.As(got))
		})
	}
}

func TestDebounceSeenSuppressesWithinWindow(t *testing.T) {
	s := &Store{seenCommands: make(map[string]time.Time)}

	require.False(t, s.DebounceSeen("hash-1", time.Minute))
	require.True(t, s.DebounceSeen("hash-1", time.Minute))
}

func TestDebounceSeenAllowsAfterWindowElapses(t *testing.T) {
	s := &Store{seenCommands: make(map[string]time.Time)}

	require.False(t, s.DebounceSeen("hash-1", time.Minute))
	s.seenCommands["hash-1"] = time.Now().Add(-2 * time.Minute)
	require.False(t, s.DebounceSeen("hash-1", time.Minute))
}

func TestDebounceSeenTracksDistinctHashesIndependently(t *testing.T) {
	s := &Store{seenCommands: make(map[string]time.Time)}

	require.False(t, s.DebounceSeen("hash-a", time.Minute))
	require.False(t, s.DebounceSeen("hash-b", time.Minute))
	require.True(t, s.DebounceSeen("hash-a", time.Minute))
	require.True(t, s.DebounceSeen("hash-b", time.Minute))
}
