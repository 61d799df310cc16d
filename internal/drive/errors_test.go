package drive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Classification must be total: every (status, payload, session) triple
// maps to exactly one Kind, deterministically.
func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		session bool
		want    Kind
	}{
		{"resume incomplete", 308, "", true, KindResumableIncomplete},
		{"resume incomplete off-session", 308, "", false, KindResumableIncomplete},
		{"invalid credentials", 401, `{"error":{"message":"Invalid Credentials"}}`, false, KindInvalidCredentials},
		{"too many requests", 429, "", false, KindRateLimited},
		{"rate limit over 403", 403, `{"error":{"errors":[{"reason":"rateLimitExceeded"}]}}`, false, KindRateLimited},
		{"user rate limit over 403", 403, `{"error":{"errors":[{"reason":"userRateLimitExceeded"}]}}`, false, KindRateLimited},
		{"quota exhausted", 403, `{"error":{"errors":[{"reason":"storageQuotaExceeded"}]}}`, false, KindQuotaExceeded},
		{"other 403", 403, `{"error":{"errors":[{"reason":"insufficientPermissions"}]}}`, false, KindUnknown},
		{"file not found", 404, `{"error":{"message":"File not found"}}`, false, KindNotFound},
		{"session expired", 404, `{"error":{"message":"Not Found"}}`, true, KindSessionExpired},
		{"server error", 500, "boom", false, KindUnknown},
		{"bad gateway", 502, "", false, KindUnknown},
		{"teapot", 418, "", false, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.status, []byte(tt.body), tt.session)
			assert.Equal(t, tt.want, got)
			// Stable: same input, same kind.
			assert.Equal(t, got, classify(tt.status, []byte(tt.body), tt.session))
		})
	}
}

func TestClassifyResponse_KeepsRawPayload(t *testing.T) {
	e := classifyResponse(500, []byte("internal wobble"), false, "download")
	require.Equal(t, KindUnknown, e.Kind)
	assert.Equal(t, 500, e.Status)
	assert.Equal(t, "internal wobble", e.Raw)
	assert.Contains(t, e.Error(), "status 500")
}

func TestKindOf(t *testing.T) {
	e := NewError(KindDuplicateIdentity, "already there")
	assert.Equal(t, KindDuplicateIdentity, KindOf(e))

	wrapped := fmt.Errorf("upserting: %w", e)
	assert.Equal(t, KindDuplicateIdentity, KindOf(wrapped))

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestWrapError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := WrapError(KindNetwork, "search request failed", cause)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, KindNetwork, KindOf(e))
}
