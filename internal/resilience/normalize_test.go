package resilience

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumExtension() *Bundle {
	return &Bundle{
		Integration: "spotify",
		ExtractSubCode: func(raw any) (string, bool) {
			var he *HTTPError
			if err, ok := raw.(error); ok && errors.As(err, &he) && he.Code != "" {
				return he.Code, true
			}
			if m, ok := raw.(map[string]any); ok {
				if code, ok := m["code"].(string); ok {
					return code, true
				}
			}
			return "", false
		},
		Messages: map[string]string{
			"premium_required":          "This feature requires a Spotify Premium subscription.",
			"insufficient_client_scope": "Playsync needs additional permissions. Please reconnect your account.",
			"token_expired":             "Your Spotify session expired. Reconnecting...",
		},
		RetryOverrides: map[string]bool{
			"premium_required": false,
			"token_expired":    true,
		},
	}
}

func TestNormalize(t *testing.T) {
	t.Run("message priority", func(t *testing.T) {
		tt := []struct {
			name string
			raw  any
			want string
		}{
			{"error message", errors.New("dial tcp: refused"), "dial tcp: refused"},
			{"map message field", map[string]any{"message": "from message"}, "from message"},
			{"map error field", map[string]any{"error": "from error"}, "from error"},
			{"message beats error", map[string]any{"message": "m", "error": "e"}, "m"},
			{"plain string", "plain text", "plain text"},
			{"nil", nil, fallbackMessage},
			{"empty map", map[string]any{}, fallbackMessage},
			{"number", 7, fallbackMessage},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				rec := Normalize(tc.raw, Classify(tc.raw), nil)
				assert.Equal(t, tc.want, rec.Message())
			})
		}
	})

	t.Run("code extraction", func(t *testing.T) {
		assert.Equal(t, "E42", Normalize(&HTTPError{Status: 400, Code: "E42"}, KindClient, nil).Code())
		assert.Equal(t, "E43", Normalize(map[string]any{"code": "E43"}, KindUnknown, nil).Code())
		assert.Empty(t, Normalize("x", KindUnknown, nil).Code())
	})

	t.Run("per-kind defaults", func(t *testing.T) {
		tt := []struct {
			kind      Kind
			retryable bool
			contains  string
		}{
			{KindNetwork, true, "connection"},
			{KindServer, true, "temporarily unavailable"},
			{KindAuthentication, false, "session has expired"},
			{KindAuthorization, false, "permissions"},
			{KindValidation, false, "check your input"},
			{KindNotFound, false, "couldn't find"},
			{KindClient, false, "couldn't be completed"},
			{KindCancelled, false, "cancelled"},
			{KindUnknown, false, "went wrong"},
		}

		for _, tc := range tt {
			t.Run(tc.kind.String(), func(t *testing.T) {
				rec := Normalize("upstream said E_BAD_THING", tc.kind, nil)
				assert.Equal(t, tc.kind, rec.Kind())
				assert.Equal(t, tc.retryable, rec.Retryable())
				assert.Contains(t, rec.UserMessage(), tc.contains)
				assert.NotContains(t, rec.UserMessage(), "E_BAD_THING")
				_, ok := rec.RetryAfter()
				assert.False(t, ok)
			})
		}
	})

	t.Run("rate limited failures carry the hint", func(t *testing.T) {
		raw := map[string]any{"status": 429, "fields": map[string]string{"retry-after": "2"}}
		rec := Normalize(raw, Classify(raw), nil)

		assert.Equal(t, KindClient, rec.Kind())
		assert.True(t, rec.Retryable())
		d, ok := rec.RetryAfter()
		require.True(t, ok)
		assert.Equal(t, 2*time.Second, d)
	})

	t.Run("rate limit hint from message text", func(t *testing.T) {
		raw := &HTTPError{Status: 429, Message: "API rate limit exceeded, retry after 30 seconds"}
		rec := Normalize(raw, Classify(raw), nil)
		d, ok := rec.RetryAfter()
		require.True(t, ok)
		assert.Equal(t, 30*time.Second, d)
	})

	t.Run("429 without a hint is retryable with no wait", func(t *testing.T) {
		rec := Normalize(&HTTPError{Status: 429}, KindClient, nil)
		assert.True(t, rec.Retryable())
		_, ok := rec.RetryAfter()
		assert.False(t, ok)
	})

	t.Run("records are returned unchanged", func(t *testing.T) {
		rec := Normalize("boom", KindServer, nil)
		assert.Same(t, rec, Normalize(rec, KindClient, nil))
		assert.Same(t, rec, Normalize(fmt.Errorf("wrapped: %w", rec), KindClient, nil))
	})

	t.Run("cause is unwrapped", func(t *testing.T) {
		sentinel := errors.New("token expired")
		rec := Normalize(fmt.Errorf("refresh: %w", sentinel), KindAuthentication, nil)
		assert.ErrorIs(t, rec, sentinel)
	})

	t.Run("details are copied", func(t *testing.T) {
		rec := Normalize(map[string]any{"status": 500, "trace": "abc"}, KindServer, nil)
		d := rec.Details()
		d["trace"] = "mutated"
		assert.Equal(t, "abc", rec.Details()["trace"])
	})

	t.Run("json omits details", func(t *testing.T) {
		rec := Normalize(map[string]any{"status": 429, "secret": "x", "fields": map[string]any{"retry-after": 3}}, KindClient, nil)
		b, err := json.Marshal(rec)
		require.NoError(t, err)

		var out map[string]any
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, "CLIENT", out["kind"])
		assert.Equal(t, true, out["retryable"])
		assert.InDelta(t, 3.0, out["retry_after_seconds"], 0.001)
		assert.NotContains(t, string(b), "secret")
	})
}

func TestExtensionPrecedence(t *testing.T) {
	ext := premiumExtension()

	t.Run("premium_required overrides the authorization defaults", func(t *testing.T) {
		raw := map[string]any{"status": 403, "code": "premium_required"}
		rec := Normalize(raw, Classify(raw), ext)

		assert.Equal(t, KindAuthorization, rec.Kind())
		assert.Equal(t, "premium_required", rec.SubCode())
		assert.Equal(t, "spotify", rec.Extension())
		assert.False(t, rec.Retryable())
		assert.Equal(t, "This feature requires a Spotify Premium subscription.", rec.UserMessage())
	})

	t.Run("token_expired is retryable despite authentication", func(t *testing.T) {
		raw := &HTTPError{Status: 401, Code: "token_expired"}
		rec := Normalize(raw, Classify(raw), ext)
		assert.Equal(t, KindAuthentication, rec.Kind())
		assert.True(t, rec.Retryable())
	})

	t.Run("unknown sub-codes keep the message default", func(t *testing.T) {
		raw := map[string]any{"status": 403, "code": "something_else"}
		rec := Normalize(raw, Classify(raw), ext)
		assert.Equal(t, "something_else", rec.SubCode())
		assert.Equal(t, DefaultUserMessage(KindAuthorization), rec.UserMessage())
		assert.False(t, rec.Retryable())
	})

	t.Run("unrecognized failures get generic defaults", func(t *testing.T) {
		rec := Normalize("connection reset", KindNetwork, ext)
		assert.Empty(t, rec.SubCode())
		assert.Empty(t, rec.Extension())
		assert.True(t, rec.Retryable())
	})

	t.Run("scenario: insufficient client scope", func(t *testing.T) {
		raw := map[string]any{"status": 403, "code": "insufficient_client_scope"}
		for _, e := range []Extension{nil, ext} {
			rec := Normalize(raw, Classify(raw), e)
			assert.Equal(t, KindAuthorization, rec.Kind())
			assert.False(t, rec.Retryable())
			assert.Contains(t, rec.UserMessage(), "permissions")
		}
	})

	t.Run("extension overrides retryability of a rate limit", func(t *testing.T) {
		quota := &Bundle{
			Integration:    "youtube",
			ExtractSubCode: func(any) (string, bool) { return "quota_exceeded", true },
			RetryOverrides: map[string]bool{"quota_exceeded": false},
		}
		rec := Normalize(&HTTPError{Status: 429, Fields: map[string]string{"Retry-After": "5"}}, KindClient, quota)
		assert.False(t, rec.Retryable())
		_, ok := rec.RetryAfter()
		assert.False(t, ok, "non-retryable records never carry a wait hint")
	})

	t.Run("extension retry-after wins", func(t *testing.T) {
		b := premiumExtension()
		b.ExtractRetryAfter = func(any) (time.Duration, bool) { return 7 * time.Second, true }
		rec := Normalize(&HTTPError{Status: 401, Code: "token_expired", Fields: map[string]string{"retry-after": "1"}}, KindAuthentication, b)
		d, ok := rec.RetryAfter()
		require.True(t, ok)
		assert.Equal(t, 7*time.Second, d)
	})
}
