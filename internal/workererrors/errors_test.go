package workererrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(CategoryInput, SeverityWarning, "missing code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing code")
	assert.False(t, err.Retryable)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, CategoryBuildTool, SeverityFatal, "build failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestPublicAndRetryableChaining(t *testing.T) {
	err := New(CategoryTransient, SeverityWarning, "backend unreachable").
		Public("please retry").
		AsRetryable()

	assert.Equal(t, "please retry", err.MsgPublic)
	assert.True(t, IsRetryable(err))
}

func TestGetCategoryFallsBackToInternal(t *testing.T) {
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
	assert.Equal(t, CategoryUpdater, GetCategory(New(CategoryUpdater, SeverityError, "x")))
}

func TestPublicMessageFallsBackToError(t *testing.T) {
	plain := errors.New("plain failure")
	assert.Equal(t, "plain failure", PublicMessage(plain))

	withPublic := New(CategoryInput, SeverityWarning, "internal detail").Public("friendly message")
	assert.Equal(t, "friendly message", PublicMessage(withPublic))

	noPublic := New(CategoryInternal, SeverityFatal, "internal only")
	assert.Equal(t, noPublic.Error(), PublicMessage(noPublic))
}

func TestWatchdogFired(t *testing.T) {
	err := WatchdogFired()
	assert.Equal(t, CategoryWatchdog, err.Category)
	assert.Equal(t, "The compilation exceed the designated time.", err.MsgPublic)
}

func TestChildCrashed(t *testing.T) {
	err := ChildCrashed(1, "SIGSEGV")
	assert.Contains(t, err.MsgPublic, "SIGSEGV")
	assert.Contains(t, err.MsgPublic, "1")
}
