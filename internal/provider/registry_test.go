package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/provider"
)

// stubProvider is a minimal Provider for registry tests.
type stubProvider struct {
	name   string
	models []string
}

func (s *stubProvider) Name() string              { return s.name }
func (s *stubProvider) SupportedModels() []string { return s.models }
func (s *stubProvider) Invoke(ctx context.Context, model string, params map[string]any) (*provider.Response, error) {
	return &provider.Response{Model: model}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg, err := provider.NewRegistry(
		&stubProvider{name: "aliyun", models: []string{"qwen-turbo", "qwen-plus"}},
		&stubProvider{name: "deepseek", models: []string{"deepseek-chat"}},
	)
	require.NoError(t, err)

	t.Run("get known provider", func(t *testing.T) {
		p, err := reg.Get("aliyun")
		require.NoError(t, err)
		assert.Equal(t, "aliyun", p.Name())
	})

	t.Run("get unknown provider is a validation error", func(t *testing.T) {
		_, err := reg.Get("unknown")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("validate supported model", func(t *testing.T) {
		assert.NoError(t, reg.Validate("aliyun", "qwen-turbo"))
	})

	t.Run("validate unsupported model", func(t *testing.T) {
		err := reg.Validate("aliyun", "deepseek-chat")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("validate unknown provider", func(t *testing.T) {
		err := reg.Validate("nope", "qwen-turbo")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("names are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"aliyun", "deepseek"}, reg.Names())
	})
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := provider.NewRegistry(
		&stubProvider{name: "aliyun"},
		&stubProvider{name: "aliyun"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
