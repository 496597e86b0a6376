package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	microregistry "go-micro.dev/v5/registry"
)

func TestServiceBuilderRoundTrip(t *testing.T) {
	svc := NewServiceBuilder("core", "v1.0.0").
		WithAddress("127.0.0.1:8082").
		WithBasePath("core").
		AddRoute(RouteConfig{PathPrefix: "/api/v1/internal", StripPrefix: false}).
		Build()

	require.Len(t, svc.Nodes, 1)
	assert.Equal(t, "core-1", svc.Nodes[0].Id)
	assert.Equal(t, "127.0.0.1:8082", svc.Nodes[0].Address)

	basePath, routes := ParseServiceMeta(svc)
	assert.Equal(t, "core", basePath)
	require.Len(t, routes, 1)
	assert.Equal(t, "/api/v1/internal", routes[0].PathPrefix)
	// 未指定方法时补全默认方法
	assert.Equal(t, DefaultMethods, routes[0].Methods)
}

func TestRouteConfigMatch(t *testing.T) {
	route := RouteConfig{
		PathPrefix: "/api/v1/core",
		Methods:    []string{"GET", "POST"},
	}

	assert.True(t, route.MatchPath("/api/v1/core/users"))
	assert.False(t, route.MatchPath("/api/v1/auth/login"))
	assert.True(t, route.MatchMethod("get"))
	assert.False(t, route.MatchMethod("DELETE"))
}

func TestMemoryRegistryWatch(t *testing.T) {
	reg := NewMemoryRegistry()

	watcher, err := reg.Watch()
	require.NoError(t, err)
	defer watcher.Stop()

	svc := NewServiceBuilder("auth", "v1.0.0").WithAddress("127.0.0.1:8081").Build()
	require.NoError(t, reg.Register(svc))

	event, err := watcher.Next()
	require.NoError(t, err)
	assert.Equal(t, "create", event.Action)
	assert.Equal(t, "auth", event.Service.Name)

	require.NoError(t, reg.Deregister(svc))
	event, err = watcher.Next()
	require.NoError(t, err)
	assert.Equal(t, "delete", event.Action)

	_, err = reg.GetService("auth")
	assert.ErrorIs(t, err, microregistry.ErrNotFound)
}

func TestMemoryRegistryList(t *testing.T) {
	reg := NewMemoryRegistry()
	require.NoError(t, reg.Register(NewServiceBuilder("a", "v1").Build()))
	require.NoError(t, reg.Register(NewServiceBuilder("b", "v1").Build()))

	services, err := reg.ListServices()
	require.NoError(t, err)
	assert.Len(t, services, 2)
}
