package runtime

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

func testSpecs() []models.ServiceSpec {
	return []models.ServiceSpec{
		{Name: "api", MinReplicas: 1, MaxReplicas: 10, ContainerPort: 8080},
		{Name: "worker", MinReplicas: 1, MaxReplicas: 5, ContainerPort: 9090},
	}
}

func TestFakeRuntime_SetAndGet(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())

	count, err := rt.GetReplicaCount(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, rt.SetReplicaCount(ctx, "api", 5))
	count, err = rt.GetReplicaCount(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	instances, err := rt.ListInstances(ctx, "api")
	require.NoError(t, err)
	require.Len(t, instances, 5)
	oldest := instances[0].ID

	// Scaling down removes the newest replicas and keeps the oldest.
	require.NoError(t, rt.SetReplicaCount(ctx, "api", 2))
	instances, err = rt.ListInstances(ctx, "api")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, oldest, instances[0].ID)
}

func TestFakeRuntime_UnknownService(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())

	_, err := rt.GetReplicaCount(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownService)

	err = rt.SetReplicaCount(ctx, "ghost", 3)
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = rt.ListInstances(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownService)

	err = rt.TerminateInstance(ctx, "ghost", "some-id")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestFakeRuntime_TerminateInstance(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())
	rt.Seed("api", 3)
	rt.Seed("worker", 1)

	apiInstances, err := rt.ListInstances(ctx, "api")
	require.NoError(t, err)
	workerInstances, err := rt.ListInstances(ctx, "worker")
	require.NoError(t, err)

	// Terminating under the wrong service must not touch anything.
	err = rt.TerminateInstance(ctx, "api", workerInstances[0].ID)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	count, err := rt.GetReplicaCount(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, rt.TerminateInstance(ctx, "api", apiInstances[1].ID))
	count, err = rt.GetReplicaCount(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A second terminate of the same id is a no-op.
	require.NoError(t, rt.TerminateInstance(ctx, "api", apiInstances[1].ID))

	assert.Contains(t, rt.TerminateCalls, apiInstances[1].ID)
}

func TestFakeRuntime_Frozen(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())
	rt.Seed("api", 2)
	rt.Frozen = true

	require.NoError(t, rt.SetReplicaCount(ctx, "api", 6))

	count, err := rt.GetReplicaCount(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "frozen runtime must not converge")
}

func TestFakeRuntime_ErrorKnobs(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())
	rt.Seed("api", 1)

	boom := errors.New("daemon unreachable")
	rt.GetErr = boom
	_, err := rt.GetReplicaCount(ctx, "api")
	assert.ErrorIs(t, err, boom)
	rt.GetErr = nil

	rt.SetErr = boom
	assert.ErrorIs(t, rt.SetReplicaCount(ctx, "api", 2), boom)
	rt.SetErr = nil

	rt.TerminateErr = boom
	assert.ErrorIs(t, rt.TerminateInstance(ctx, "api", "whatever"), boom)
}

func TestFakeRuntime_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	rt := NewFakeRuntime(testSpecs())
	rt.Seed("api", 2)

	instances, err := rt.ListInstances(ctx, "api")
	require.NoError(t, err)
	instances[0].ID = "mutated"

	again, err := rt.ListInstances(ctx, "api")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].ID)
}

func TestDockerRuntime_FreePort(t *testing.T) {
	d := &DockerRuntime{cfg: config.DockerConfig{BasePort: 18000, LabelPrefix: "autoscaler"}}

	addr := func(port string) models.Instance {
		return models.Instance{Address: "127.0.0.1:" + port}
	}

	tests := []struct {
		name string
		used []models.Instance
		want int
	}{
		{name: "empty fleet", used: nil, want: 18000},
		{name: "contiguous", used: []models.Instance{addr("18000"), addr("18001")}, want: 18002},
		{name: "gap is reused", used: []models.Instance{addr("18000"), addr("18002")}, want: 18001},
		{name: "garbage address ignored", used: []models.Instance{{Address: "nonsense"}}, want: 18000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.freePort(tt.used)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDockerRuntime_FreePortExhausted(t *testing.T) {
	d := &DockerRuntime{cfg: config.DockerConfig{BasePort: 18000}}

	used := make([]models.Instance, 0, portSpan)
	for p := 18000; p < 18000+portSpan; p++ {
		used = append(used, models.Instance{Address: "127.0.0.1:" + strconv.Itoa(p)})
	}

	_, err := d.freePort(used)
	assert.Error(t, err)
}

func TestDockerRuntime_ToInstance(t *testing.T) {
	d := &DockerRuntime{cfg: config.DockerConfig{LabelPrefix: "autoscaler"}}

	inst, ok := d.toInstance("abc123", map[string]string{
		"autoscaler.service": "api",
		"autoscaler.port":    "18004",
		"autoscaler.created": "2026-08-20T10:00:00Z",
	})
	require.True(t, ok)
	assert.Equal(t, "abc123", inst.ID)
	assert.Equal(t, "api", inst.Service)
	assert.Equal(t, "127.0.0.1:18004", inst.Address)
	assert.Equal(t, models.InstanceRunning, inst.State)
	assert.Equal(t, 2026, inst.StartedAt.Year())

	// Containers without the port label cannot be routed to; skip them.
	_, ok = d.toInstance("abc123", map[string]string{"autoscaler.service": "api"})
	assert.False(t, ok)
}

func TestSortInstances(t *testing.T) {
	t0 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	instances := []models.Instance{
		{ID: "c", StartedAt: t0.Add(2 * time.Minute), Address: "127.0.0.1:18002"},
		{ID: "a", StartedAt: t0, Address: "127.0.0.1:18000"},
		{ID: "b", StartedAt: t0, Address: "127.0.0.1:18001"},
	}

	sortInstances(instances)

	assert.Equal(t, "a", instances[0].ID)
	assert.Equal(t, "b", instances[1].ID)
	assert.Equal(t, "c", instances[2].ID)
}
