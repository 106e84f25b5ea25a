package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_SetHealthy(t *testing.T) {
	h := NewHealth()

	h.SetHealthy("publisher", "authenticated")

	status, ok := h.Status("publisher")
	require.True(t, ok)
	assert.True(t, status.Healthy)
	assert.Equal(t, "authenticated", status.Message)
	assert.Nil(t, status.LastError)
	assert.WithinDuration(t, time.Now(), status.LastCheck, time.Second)
}

func TestHealth_SetUnhealthy(t *testing.T) {
	h := NewHealth()

	err := assert.AnError
	h.SetUnhealthy("history", err)

	status, ok := h.Status("history")
	require.True(t, ok)
	assert.False(t, status.Healthy)
	assert.Equal(t, err, status.LastError)
	assert.Equal(t, err.Error(), status.Message)
}

func TestHealth_Status_NotReported(t *testing.T) {
	h := NewHealth()

	_, ok := h.Status("nonexistent")
	assert.False(t, ok)
}

func TestHealth_Healthy(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := NewHealth()
		h.SetHealthy("publisher", "ok")
		h.SetHealthy("history", "ok")
		assert.True(t, h.Healthy())
	})

	t.Run("one unhealthy", func(t *testing.T) {
		h := NewHealth()
		h.SetHealthy("publisher", "ok")
		h.SetUnhealthy("history", assert.AnError)
		assert.False(t, h.Healthy())
	})

	t.Run("recovers", func(t *testing.T) {
		h := NewHealth()
		h.SetUnhealthy("history", assert.AnError)
		h.SetHealthy("history", "back")
		assert.True(t, h.Healthy())
	})

	t.Run("empty", func(t *testing.T) {
		h := NewHealth()
		assert.True(t, h.Healthy())
	})
}
