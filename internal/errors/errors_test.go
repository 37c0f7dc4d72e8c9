package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("connection reset")

	withCause := Transient("posting status", cause)
	assert.Equal(t, "transient_network: posting status: connection reset", withCause.Error())

	withoutCause := RateLimited("quota exhausted")
	assert.Equal(t, "rate_limited: quota exhausted", withoutCause.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Transient("wrapped", cause)

	assert.True(t, stderrors.Is(err, cause))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handling event: %w", InvalidCredentials("token revoked", nil))

	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	assert.True(t, IsKind(err, KindInvalidCredentials))
	assert.True(t, IsFatal(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.False(t, IsFatal(stderrors.New("plain")))
	assert.False(t, IsRateLimited(nil))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(RateLimited("wait")))
	assert.False(t, IsRateLimited(Transient("slow", nil)))
}

func TestWithContext(t *testing.T) {
	err := CaptchaUnavailable("fetch failed", nil).
		WithContext("user_id", int64(42)).
		WithContext("attempt", 2)

	require.NotNil(t, err.Context)
	assert.Equal(t, int64(42), err.Context["user_id"])
	assert.Equal(t, 2, err.Context["attempt"])
}

func TestConstructorKinds(t *testing.T) {
	assert.Equal(t, KindTransient, Transient("", nil).Kind)
	assert.Equal(t, KindInvalidCredentials, InvalidCredentials("", nil).Kind)
	assert.Equal(t, KindRateLimited, RateLimited("").Kind)
	assert.Equal(t, KindCaptchaUnavailable, CaptchaUnavailable("", nil).Kind)
	assert.Equal(t, KindMalformedEvent, MalformedEvent("", nil).Kind)
}
