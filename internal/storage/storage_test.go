package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPathConfig_ObjectKeyShards(t *testing.T) {
	c := DefaultPathConfig()
	assert.Equal(t, "objects/ab/cdef0123", c.ObjectKey("abcdef0123"))
}

func TestPathConfig_RefKey(t *testing.T) {
	c := DefaultPathConfig()
	assert.Equal(t, "HEAD", c.RefKey("HEAD"))
	assert.Equal(t, "refs/heads/main", c.RefKey("main"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewError(KindTransient, "test", errors.New("temporary"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_DoesNotRetryNonTransient(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ExhaustsAndSurfacesTransient(t *testing.T) {
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(ctx context.Context) error {
		return NewError(KindTransient, "test", errors.New("still down"))
	})
	assert.True(t, IsTransient(err))
}
