package runtime

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// portSpan bounds how far above base_port the driver will search for a
// free host port.
const portSpan = 1000

// DockerRuntime runs every replica as a labelled container on the local
// daemon. Each container publishes its service port on a loopback host
// port, so the routing layer can target 127.0.0.1:<port> directly, and
// carries ownership labels that let the driver enumerate its fleet
// without tracking state of its own.
type DockerRuntime struct {
	client *client.Client
	cfg    config.DockerConfig
	specs  map[string]models.ServiceSpec

	// Serializes host port allocation; parallel pipelines must not hand
	// the same port to two containers.
	mu sync.Mutex
}

// NewDockerRuntime connects to the local daemon using the standard
// DOCKER_HOST environment handling.
func NewDockerRuntime(cfg config.DockerConfig, specs []models.ServiceSpec) (*DockerRuntime, error) {
	c, err := client.New(
		client.FromEnv,
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	byName := make(map[string]models.ServiceSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	return &DockerRuntime{
		client: c,
		cfg:    cfg,
		specs:  byName,
	}, nil
}

func (d *DockerRuntime) GetReplicaCount(ctx context.Context, service string) (int, error) {
	instances, err := d.ListInstances(ctx, service)
	if err != nil {
		return 0, err
	}
	return len(instances), nil
}

func (d *DockerRuntime) ListInstances(ctx context.Context, service string) ([]models.Instance, error) {
	if _, ok := d.specs[service]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return d.listManaged(ctx, service)
}

func (d *DockerRuntime) SetReplicaCount(ctx context.Context, service string, n int) error {
	spec, ok := d.specs[service]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if n < 0 {
		return fmt.Errorf("replica count must not be negative, got %d", n)
	}

	instances, err := d.listManaged(ctx, service)
	if err != nil {
		return err
	}

	switch {
	case len(instances) < n:
		for i := len(instances); i < n; i++ {
			if _, err := d.createInstance(ctx, spec); err != nil {
				return err
			}
		}
	case len(instances) > n:
		// listManaged sorts oldest first, so the tail holds the newest
		// replicas. Those go first.
		victims := instances[n:]
		for i := len(victims) - 1; i >= 0; i-- {
			if err := d.TerminateInstance(ctx, service, victims[i].ID); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *DockerRuntime) TerminateInstance(ctx context.Context, service, id string) error {
	inspect, err := d.client.ContainerInspect(ctx, id, client.ContainerInspectOptions{})
	if err != nil {
		// Already gone; terminating is idempotent.
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect container %q: %w", id, err)
	}

	var labels map[string]string
	if inspect.Container.Config != nil {
		labels = inspect.Container.Config.Labels
	}
	if labels[d.label("service")] != service {
		return fmt.Errorf("%w: container %s does not belong to %s", ErrInstanceNotFound, id, service)
	}

	stopCtx := ctx
	if d.cfg.StopTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, d.cfg.StopTimeout)
		defer cancel()
	}
	_, _ = d.client.ContainerStop(stopCtx, id, client.ContainerStopOptions{})

	_, err = d.client.ContainerRemove(ctx, id, client.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", id, err)
	}

	logger.WithService(service).WithField("container", shortID(id)).Info("Terminated replica")
	return nil
}

func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// listManaged enumerates running managed containers. An empty service
// matches every managed service, which port allocation needs because
// host ports are unique across the whole fleet.
func (d *DockerRuntime) listManaged(ctx context.Context, service string) ([]models.Instance, error) {
	f := make(client.Filters).
		Add("label", d.label("managed")+"=true")
	if service != "" {
		f = f.Add("label", d.label("service")+"="+service)
	}

	containers, err := d.client.ContainerList(ctx, client.ContainerListOptions{
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	instances := make([]models.Instance, 0, len(containers.Items))
	for _, c := range containers.Items {
		inspect, err := d.client.ContainerInspect(ctx, c.ID, client.ContainerInspectOptions{})
		if err != nil {
			// Vanished between list and inspect.
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("inspect container %q: %w", c.ID, err)
		}

		var labels map[string]string
		if inspect.Container.Config != nil {
			labels = inspect.Container.Config.Labels
		}
		inst, ok := d.toInstance(inspect.Container.ID, labels)
		if !ok {
			continue
		}
		instances = append(instances, inst)
	}

	sortInstances(instances)
	return instances, nil
}

// createInstance starts one fresh replica from the service template.
func (d *DockerRuntime) createInstance(ctx context.Context, spec models.ServiceSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureNetwork(ctx); err != nil {
		return "", err
	}

	all, err := d.listManaged(ctx, "")
	if err != nil {
		return "", err
	}
	hostPort, err := d.freePort(all)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s", spec.Name, uuid.New().String()[:8])

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := map[string]string{
		d.label("managed"): "true",
		d.label("service"): spec.Name,
		d.label("port"):    strconv.Itoa(hostPort),
		d.label("created"): time.Now().UTC().Format(time.RFC3339Nano),
	}

	port, _ := network.PortFrom(uint16(spec.ContainerPort), "tcp")

	cCfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       labels,
		ExposedPorts: network.PortSet{port: struct{}{}},
	}

	hCfg := &container.HostConfig{
		PortBindings: network.PortMap{
			port: []network.PortBinding{{
				HostIP:   netip.MustParseAddr("127.0.0.1"),
				HostPort: strconv.Itoa(hostPort),
			}},
		},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyAlways,
		},
	}

	nCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			d.cfg.Network: {Aliases: []string{spec.Name}},
		},
	}

	created, err := d.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           cCfg,
		HostConfig:       hCfg,
		NetworkingConfig: nCfg,
		Name:             name,
		Image:            spec.Image,
	})
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", name, err)
	}

	if _, err := d.client.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		// Do not leave a created-but-never-started container behind.
		_, _ = d.client.ContainerRemove(ctx, created.ID, client.ContainerRemoveOptions{Force: true})
		return "", fmt.Errorf("start container %q: %w", name, err)
	}

	logger.WithService(spec.Name).
		WithField("container", name).
		WithField("address", "127.0.0.1:"+strconv.Itoa(hostPort)).
		Info("Started replica")

	return created.ID, nil
}

// ensureNetwork creates the shared network on first use. Race-safe: a
// concurrent create by another process is treated as success.
func (d *DockerRuntime) ensureNetwork(ctx context.Context) error {
	_, err := d.client.NetworkInspect(ctx, d.cfg.Network, client.NetworkInspectOptions{})
	if err == nil {
		return nil
	}

	_, err = d.client.NetworkCreate(ctx, d.cfg.Network, client.NetworkCreateOptions{
		Labels: map[string]string{
			d.label("managed"): "true",
		},
	})
	if err != nil {
		if _, ie := d.client.NetworkInspect(ctx, d.cfg.Network, client.NetworkInspectOptions{}); ie == nil {
			return nil
		}
		return fmt.Errorf("create network %q: %w", d.cfg.Network, err)
	}
	return nil
}

// freePort picks the lowest unused host port at or above base_port.
// Freed ports are reused, so a long-lived fleet does not creep upward.
func (d *DockerRuntime) freePort(all []models.Instance) (int, error) {
	used := make(map[int]bool, len(all))
	for _, inst := range all {
		if _, portStr, err := net.SplitHostPort(inst.Address); err == nil {
			if p, aerr := strconv.Atoi(portStr); aerr == nil {
				used[p] = true
			}
		}
	}

	for p := d.cfg.BasePort; p < d.cfg.BasePort+portSpan; p++ {
		if !used[p] {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free host port in [%d, %d)", d.cfg.BasePort, d.cfg.BasePort+portSpan)
}

// toInstance maps container labels to an Instance. Containers missing
// the expected labels are skipped rather than reported half-formed.
func (d *DockerRuntime) toInstance(id string, labels map[string]string) (models.Instance, bool) {
	service := labels[d.label("service")]
	port := labels[d.label("port")]
	if service == "" || port == "" {
		return models.Instance{}, false
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, labels[d.label("created")])

	return models.Instance{
		ID:        id,
		Service:   service,
		Address:   "127.0.0.1:" + port,
		State:     models.InstanceRunning,
		StartedAt: startedAt,
	}, true
}

func (d *DockerRuntime) label(key string) string {
	return d.cfg.LabelPrefix + "." + key
}

func sortInstances(instances []models.Instance) {
	sort.Slice(instances, func(i, j int) bool {
		if !instances[i].StartedAt.Equal(instances[j].StartedAt) {
			return instances[i].StartedAt.Before(instances[j].StartedAt)
		}
		return instances[i].Address < instances[j].Address
	})
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
