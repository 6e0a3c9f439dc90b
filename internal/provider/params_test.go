package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/modelgate/internal/domain"
)

func TestChatMessages(t *testing.T) {
	t.Parallel()

	t.Run("prompt becomes single user message", func(t *testing.T) {
		msgs, err := chatMessages(map[string]any{"prompt": "hello"})
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].Role)
		assert.Equal(t, "hello", msgs[0].Content)
	})

	t.Run("explicit messages win over prompt", func(t *testing.T) {
		msgs, err := chatMessages(map[string]any{
			"prompt": "ignored",
			"messages": []any{
				map[string]any{"role": "system", "content": "be brief"},
				map[string]any{"role": "user", "content": "hi"},
			},
		})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].Role)
		assert.Equal(t, "hi", msgs[1].Content)
	})

	t.Run("message entry missing role is rejected", func(t *testing.T) {
		_, err := chatMessages(map[string]any{
			"messages": []any{map[string]any{"content": "hi"}},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("missing input is rejected", func(t *testing.T) {
		_, err := chatMessages(map[string]any{"temperature": 0.1})
		assert.ErrorIs(t, err, domain.ErrMissingInput)
	})
}

func TestNumericParams(t *testing.T) {
	t.Parallel()

	// encoding/json decodes all numbers to float64; both representations
	// must be accepted.
	params := map[string]any{
		"max_tokens":  float64(100),
		"top_k":       5,
		"temperature": 0.3,
	}

	assert.Equal(t, 100, intParam(params, "max_tokens", 0))
	assert.Equal(t, 5, intParam(params, "top_k", 0))
	assert.Equal(t, 42, intParam(params, "missing", 42))
	assert.InDelta(t, 0.3, floatParam(params, "temperature", 0.7), 1e-9)
	assert.InDelta(t, 0.7, floatParam(params, "missing", 0.7), 1e-9)

	assert.True(t, hasParam(params, "top_k"))
	assert.False(t, hasParam(params, "seed"))
}

func TestClamping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 6000, clampInt(9000, 1, 6000))
	assert.Equal(t, 1, clampInt(-5, 1, 6000))
	assert.Equal(t, 2048, clampInt(2048, 1, 6000))
	assert.InDelta(t, 1.0, clampFloat(1.7, 0, 1), 1e-9)
	assert.InDelta(t, 0.0, clampFloat(-0.2, 0, 1), 1e-9)
}
