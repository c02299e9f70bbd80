package governor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

func apiSpec() *models.ServiceSpec {
	return &models.ServiceSpec{
		Name:        "api",
		MinReplicas: 1,
		MaxReplicas: 10,
	}
}

func decide(action models.ScalingAction) *models.ScalingDecision {
	return &models.ScalingDecision{Service: "api", Action: action, Timestamp: time.Now()}
}

func testGovernorConfig() config.GovernorConfig {
	return config.GovernorConfig{
		Cooldown: 5 * time.Minute,
		Emergency: config.EmergencyConfig{
			CPUPct:        90,
			MemoryPct:     95,
			FloorReplicas: 2,
		},
	}
}

type brokenOverrideStore struct {
	store.Store
	err error
}

func (s *brokenOverrideStore) GetOverride(context.Context, string) (*models.ManualOverride, error) {
	return nil, s.err
}

type brokenStateStore struct {
	store.Store
	err error
}

func (s *brokenStateStore) GetState(context.Context, string) (*models.ScalingState, error) {
	return nil, s.err
}

func TestGovernor_ApprovesSingleStep(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore(), testGovernorConfig())
	spec := apiSpec()

	count, vetoed, reason := g.Validate(ctx, spec, decide(models.ActionScaleUp), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 4, count)
	assert.Equal(t, "policy decision approved", reason)

	count, vetoed, _ = g.Validate(ctx, spec, decide(models.ActionScaleDown), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 2, count)

	count, vetoed, reason = g.Validate(ctx, spec, decide(models.ActionNoScale), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Equal(t, "no change required", reason)
}

func TestGovernor_BoundsVetoNotClamp(t *testing.T) {
	tests := []struct {
		name     string
		action   models.ScalingAction
		observed int
		fragment string
	}{
		{"at max refuses up", models.ActionScaleUp, 10, "max_replicas"},
		{"at min refuses down", models.ActionScaleDown, 1, "min_replicas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(store.NewMemoryStore(), testGovernorConfig())

			count, vetoed, reason := g.Validate(context.Background(), apiSpec(), decide(tt.action), tt.observed)
			assert.True(t, vetoed)
			assert.Equal(t, tt.observed, count)
			assert.Contains(t, reason, tt.fragment)
		})
	}
}

func TestGovernor_RepairsOutOfBoundsObserved(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemoryStore(), testGovernorConfig())
	spec := apiSpec()

	// Someone started replicas behind the loop's back.
	count, vetoed, reason := g.Validate(ctx, spec, decide(models.ActionNoScale), 15)
	assert.False(t, vetoed)
	assert.Equal(t, 10, count)
	assert.Contains(t, reason, "repairing")

	// Replicas died below the minimum.
	count, vetoed, reason = g.Validate(ctx, spec, decide(models.ActionNoScale), 0)
	assert.False(t, vetoed)
	assert.Equal(t, 1, count)
	assert.Contains(t, reason, "repairing")
}

func TestGovernor_CooldownVeto(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	require.NoError(t, st.SetState(ctx, models.ScalingState{
		Service:         "api",
		CurrentReplicas: 3,
		LastScaledAt:    now.Add(-time.Minute),
	}))

	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionScaleUp), 3)
	assert.True(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Equal(t, "cooldown active: 4m0s remaining", reason)

	// Window expired: the same decision goes through.
	g.nowFn = func() time.Time { return now.Add(5 * time.Minute) }
	count, vetoed, _ = g.Validate(ctx, apiSpec(), decide(models.ActionScaleUp), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 4, count)
}

func TestGovernor_NoChangeIgnoresCooldown(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	require.NoError(t, st.SetState(ctx, models.ScalingState{
		Service:         "api",
		CurrentReplicas: 3,
		LastScaledAt:    now.Add(-time.Minute),
	}))

	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionNoScale), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Equal(t, "no change required", reason)
}

func TestGovernor_CooldownBindsRepairs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return now }

	require.NoError(t, st.SetState(ctx, models.ScalingState{
		Service:         "api",
		CurrentReplicas: 15,
		LastScaledAt:    now.Add(-time.Minute),
	}))

	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionNoScale), 15)
	assert.True(t, vetoed)
	assert.Equal(t, 15, count)
	assert.Contains(t, reason, "cooldown active")
}

func TestGovernor_OverridePinsCount(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	require.NoError(t, st.SetOverride(ctx, models.ManualOverride{
		Service: "api", Replicas: 7, SetBy: "oncall",
	}))

	// The pin replaces the policy verdict entirely.
	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionScaleDown), 3)
	assert.False(t, vetoed)
	assert.Equal(t, 7, count)
	assert.Contains(t, reason, "oncall")

	// Already converged on the pin.
	count, vetoed, reason = g.Validate(ctx, apiSpec(), decide(models.ActionScaleUp), 7)
	assert.False(t, vetoed)
	assert.Equal(t, 7, count)
	assert.Equal(t, "no change required", reason)
}

func TestGovernor_OverrideStillBoundsChecked(t *testing.T) {
	// Bounds can tighten in config after a pin was stored.
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	require.NoError(t, st.SetOverride(ctx, models.ManualOverride{
		Service: "api", Replicas: 12, SetBy: "oncall",
	}))

	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionNoScale), 3)
	assert.True(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Contains(t, reason, "max_replicas")
}

func TestGovernor_StoreFailuresFailSafe(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	g := New(&brokenOverrideStore{Store: store.NewMemoryStore(), err: boom}, testGovernorConfig())
	count, vetoed, reason := g.Validate(ctx, apiSpec(), decide(models.ActionScaleUp), 3)
	assert.True(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Contains(t, reason, "override lookup failed")

	g = New(&brokenStateStore{Store: store.NewMemoryStore(), err: boom}, testGovernorConfig())
	count, vetoed, reason = g.Validate(ctx, apiSpec(), decide(models.ActionScaleUp), 3)
	assert.True(t, vetoed)
	assert.Equal(t, 3, count)
	assert.Contains(t, reason, "state lookup failed")
}

func TestGovernor_EmergencyTarget(t *testing.T) {
	tests := []struct {
		name     string
		floor    int
		min, max int
		observed int
		want     int
	}{
		{"sheds to floor", 2, 1, 10, 5, 2},
		{"never grows", 2, 1, 10, 1, 1},
		{"floor below min clamps up", 0, 2, 10, 5, 2},
		{"floor above max clamps down", 20, 1, 4, 6, 4},
		{"clamped floor above current stays put", 20, 1, 4, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGovernorConfig()
			cfg.Emergency.FloorReplicas = tt.floor
			g := New(store.NewMemoryStore(), cfg)

			spec := &models.ServiceSpec{Name: "api", MinReplicas: tt.min, MaxReplicas: tt.max}
			assert.Equal(t, tt.want, g.EmergencyTarget(spec, tt.observed))
		})
	}
}

func TestGovernor_SetOverride(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	o, err := g.SetOverride(ctx, apiSpec(), 4, "oncall")
	require.NoError(t, err)
	assert.Equal(t, 4, o.Replicas)
	assert.Equal(t, "oncall", o.SetBy)
	assert.False(t, o.SetAt.IsZero())

	stored, err := st.GetOverride(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Replicas)
}

func TestGovernor_SetOverrideRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	_, err := g.SetOverride(ctx, apiSpec(), 11, "oncall")
	require.ErrorIs(t, err, ErrOverrideOutOfBounds)

	_, err = st.GetOverride(ctx, "api")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGovernor_ClearOverride(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := New(st, testGovernorConfig())

	_, err := g.SetOverride(ctx, apiSpec(), 4, "oncall")
	require.NoError(t, err)
	require.NoError(t, g.ClearOverride(ctx, "api"))

	_, err = st.GetOverride(ctx, "api")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, g.ClearOverride(ctx, "api"), store.ErrNotFound)
}

func monitorMetricsConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Window: "5m",
		Queries: config.QueryTemplates{
			ClusterCPU:    `avg(cluster_cpu[$window])`,
			ClusterMemory: `avg(cluster_mem[$window])`,
		},
	}
}

func TestMonitor_EntersAndExits(t *testing.T) {
	ctx := context.Background()
	q := collector.NewStaticQuerier()
	q.Set(`avg(cluster_cpu[5m])`, 50)
	q.Set(`avg(cluster_mem[5m])`, 50)

	var transitions []string
	m := NewMonitor(q, monitorMetricsConfig(), testGovernorConfig().Emergency,
		func(from, to Mode, reason string) {
			transitions = append(transitions, string(from)+">"+string(to))
		})

	mode, err := m.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, mode)
	assert.Empty(t, transitions)

	q.Set(`avg(cluster_cpu[5m])`, 93.5)
	mode, err = m.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeEmergency, mode)
	assert.Equal(t, ModeEmergency, m.Mode())

	// Staying over the limit is not a new transition.
	_, err = m.Evaluate(ctx)
	require.NoError(t, err)

	q.Set(`avg(cluster_cpu[5m])`, 40)
	mode, err = m.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, mode)

	assert.Equal(t, []string{"normal>emergency", "emergency>normal"}, transitions)
}

func TestMonitor_MemoryBreachCountsEvenWithCPUUnavailable(t *testing.T) {
	q := collector.NewStaticQuerier()
	q.SetError(`avg(cluster_cpu[5m])`, errors.New("scrape failed"))
	q.Set(`avg(cluster_mem[5m])`, 97)

	m := NewMonitor(q, monitorMetricsConfig(), testGovernorConfig().Emergency, nil)
	mode, err := m.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeEmergency, mode)
}

func TestMonitor_StickyWhenTelemetryUnavailable(t *testing.T) {
	ctx := context.Background()
	q := collector.NewStaticQuerier()
	q.Set(`avg(cluster_cpu[5m])`, 99)
	q.Set(`avg(cluster_mem[5m])`, 50)

	m := NewMonitor(q, monitorMetricsConfig(), testGovernorConfig().Emergency, nil)
	mode, err := m.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, ModeEmergency, mode)

	// CPU calms down but memory is now unknown: not enough evidence to
	// stand down.
	q.Set(`avg(cluster_cpu[5m])`, 30)
	q.SetError(`avg(cluster_mem[5m])`, errors.New("scrape failed"))
	mode, err = m.Evaluate(ctx)
	require.Error(t, err)
	assert.Equal(t, ModeEmergency, mode)

	// And from the calm side, a failed query never fabricates an
	// emergency.
	q.Set(`avg(cluster_mem[5m])`, 50)
	_, err = m.Evaluate(ctx)
	require.NoError(t, err)

	q.SetError(`avg(cluster_cpu[5m])`, errors.New("scrape failed"))
	mode, err = m.Evaluate(ctx)
	require.Error(t, err)
	assert.Equal(t, ModeNormal, mode)
}
