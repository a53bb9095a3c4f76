package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventQuotaDenied, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventQuotaDenied, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.UserID)
		return nil
	})
	d.Subscribe(EventQuotaGranted, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), New(EventQuotaDenied, "42", time.Now(), nil))
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second:42"}, calls)
}

func TestNewStampsID(t *testing.T) {
	a := New(EventUserCreated, "1", time.Now(), nil)
	b := New(EventUserCreated, "1", time.Now(), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NoError(t, NopDispatcher().Publish(context.Background(), a))
}
