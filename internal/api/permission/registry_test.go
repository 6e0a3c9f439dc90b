package permission

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(http.MethodPost, "/tasks", "task", "create"))
	require.NoError(t, r.Register(http.MethodGet, "/tasks", "task", "list"))
	require.NoError(t, r.Register(http.MethodGet, "/tasks/{id}/status", "task", "read"))
	r.Freeze()

	req, ok := r.Lookup(http.MethodPost, "/tasks")
	require.True(t, ok)
	assert.Equal(t, Requirement{Resource: "task", Action: "create"}, req)

	// Same pattern, different method, different requirement.
	req, ok = r.Lookup(http.MethodGet, "/tasks")
	require.True(t, ok)
	assert.Equal(t, "list", req.Action)

	// Unmapped routes are public.
	_, ok = r.Lookup(http.MethodGet, "/health")
	assert.False(t, ok)

	assert.Equal(t, 3, r.Len())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(http.MethodPost, "/tasks", "task", "create"))

	err := r.Register(http.MethodPost, "/tasks", "task", "cancel")
	assert.Error(t, err)
}

func TestRegistryRejectsRegistrationAfterFreeze(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(http.MethodPost, "/tasks", "task", "create"))
	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(http.MethodGet, "/tasks", "task", "list")
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsEmptyRequirement(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(http.MethodPost, "/tasks", "", "create"))
	assert.Error(t, r.Register(http.MethodPost, "/tasks", "task", ""))
}
