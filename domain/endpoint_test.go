package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExportEndpoint_AssignsUniqueUIDs(t *testing.T) {
	ref := NewServiceRef("7", nil)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ep := NewExportEndpoint("svc", "fw-1", []string{"jsonrpc"}, []string{"api.Echo"}, ref, nil, nil)
		require.NotEmpty(t, ep.UID)
		assert.False(t, seen[ep.UID], "uid %s assigned twice", ep.UID)
		seen[ep.UID] = true
	}
}

func TestNewExportEndpoint_DetachesInputs(t *testing.T) {
	configs := []string{"jsonrpc"}
	props := map[string]any{"k": "v"}
	ep := NewExportEndpoint("svc", "fw-1", configs, nil, NewServiceRef("1", nil), nil, props)

	configs[0] = "changed"
	props["k"] = "changed"

	assert.Equal(t, []string{"jsonrpc"}, ep.Configurations)
	assert.Equal(t, "v", ep.Properties["k"])
}

func TestEndpoint_Copy(t *testing.T) {
	ep := Endpoint{
		UID:            "uid-1",
		Name:           "svc",
		FrameworkUID:   "fw-1",
		Configurations: []string{"jsonrpc", "xmlrpc"},
		Specifications: []string{"api.Echo"},
		Properties:     map[string]any{"k": "v"},
	}

	cp := ep.Copy()
	require.Equal(t, ep.UID, cp.UID)
	require.Equal(t, ep.Name, cp.Name)

	cp.Configurations[0] = "changed"
	cp.Properties["k"] = "changed"
	assert.Equal(t, "jsonrpc", ep.Configurations[0])
	assert.Equal(t, "v", ep.Properties["k"])
}

func TestEndpoint_HasConfiguration(t *testing.T) {
	ep := Endpoint{Configurations: []string{"jsonrpc", "xmlrpc"}}

	assert.True(t, ep.HasConfiguration("jsonrpc"))
	assert.True(t, ep.HasConfiguration("xmlrpc"))
	assert.False(t, ep.HasConfiguration("mqtt"))
	assert.False(t, ep.HasConfiguration(""))
}

func TestServiceRef_Update(t *testing.T) {
	ref := NewServiceRef("42", map[string]any{"endpoint.name": "first", "keep": 1})

	previous := ref.Update(map[string]any{"endpoint.name": "second"})

	assert.Equal(t, "first", previous["endpoint.name"])
	assert.Equal(t, 1, previous["keep"])
	assert.Equal(t, "second", ref.Property("endpoint.name"))
	assert.Equal(t, 1, ref.Property("keep"))
}

func TestServiceRef_PropertiesCopy(t *testing.T) {
	ref := NewServiceRef("42", map[string]any{"k": "v"})

	props := ref.Properties()
	props["k"] = "changed"

	assert.Equal(t, "v", ref.Property("k"))
}
