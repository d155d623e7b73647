// Package devnode runs a local development chain in a Docker container.
package devnode

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
)

const (
	DefaultImage   = "ghcr.io/foundry-rs/foundry:latest"
	DefaultPort    = 8545
	DefaultName    = "deployr-devnode"
	DefaultChainID = 31337
)

type dockerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Config describes the dev chain container.
type Config struct {
	Image   string
	Port    int
	Command []string
	Name    string
	ChainID uint64
}

// FromIR converts the configuration file section, filling defaults.
func FromIR(c *ir.DevNodeConfig, chainID uint64) Config {
	cfg := Config{ChainID: chainID}
	if c != nil {
		cfg.Image, cfg.Port, cfg.Command, cfg.Name = c.Image, c.Port, c.Command, c.Name
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ChainID == 0 {
		c.ChainID = DefaultChainID
	}
	if len(c.Command) == 0 {
		c.Command = []string{"anvil", "--host", "0.0.0.0", "--port", strconv.Itoa(DefaultPort), "--chain-id", strconv.FormatUint(c.ChainID, 10)}
	}
	return c
}

// URL returns the JSON-RPC endpoint exposed on the host.
func (c Config) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}

// containerSpec builds the container and host configuration. The node always
// listens on DefaultPort inside the container; Port is the host side.
func containerSpec(c Config) (*container.Config, *container.HostConfig) {
	rpcPort := nat.Port(fmt.Sprintf("%d/tcp", DefaultPort))

	cfg := &container.Config{
		Image:        c.Image,
		Entrypoint:   c.Command[:1],
		Cmd:          c.Command[1:],
		ExposedPorts: nat.PortSet{rpcPort: struct{}{}},
		Labels:       map[string]string{"managed-by": "deployr"},
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			rpcPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(c.Port)}},
		},
		AutoRemove: false,
	}
	return cfg, host
}

// Node manages one dev chain container.
type Node struct {
	client dockerAPI
	cfg    Config
}

// New connects to the Docker daemon from the environment.
func New(cfg Config) (*Node, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Node{client: cli, cfg: cfg.withDefaults()}, nil
}

func (n *Node) Config() Config {
	return n.cfg
}

// Start pulls the image and starts the container unless it is already running.
// It returns the RPC URL.
func (n *Node) Start(ctx context.Context) (string, error) {
	log := logging.With("container", n.cfg.Name, "image", n.cfg.Image)

	existing, err := n.client.ContainerInspect(ctx, n.cfg.Name)
	switch {
	case err == nil && existing.ContainerJSONBase != nil && existing.State != nil && existing.State.Running:
		log.Info("dev node already running", "url", n.cfg.URL())
		return n.cfg.URL(), nil
	case err == nil:
		if err := n.client.ContainerStart(ctx, n.cfg.Name, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("failed to restart container: %w", err)
		}
		log.Info("dev node restarted", "url", n.cfg.URL())
		return n.cfg.URL(), nil
	case !client.IsErrNotFound(err):
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	reader, err := n.client.ImagePull(ctx, n.cfg.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", n.cfg.Image, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	cfg, host := containerSpec(n.cfg)
	resp, err := n.client.ContainerCreate(ctx, cfg, host, &network.NetworkingConfig{}, &v1.Platform{}, n.cfg.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := n.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	log.Info("dev node started", "id", resp.ID, "url", n.cfg.URL())
	return n.cfg.URL(), nil
}

// Stop stops and removes the container. A missing container is not an error.
func (n *Node) Stop(ctx context.Context) error {
	timeout := 10
	if err := n.client.ContainerStop(ctx, n.cfg.Name, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := n.client.ContainerRemove(ctx, n.cfg.Name, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	logging.Info("dev node stopped", "container", n.cfg.Name)
	return nil
}
