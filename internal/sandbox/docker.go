package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Launcher builds the command that starts a harness process. dir holds the
// harness script; the command must speak the harness protocol on stdin/stdout.
type Launcher interface {
	Command(ctx context.Context, dir, script string) (*exec.Cmd, error)
}

// Stopper is implemented by launchers whose harness outlives the launched
// command, such as a container behind a CLI client. Stop is called once when
// the worker is killed.
type Stopper interface {
	Stop(dir string) error
}

// LocalLauncher runs the harness with a Python binary on the host.
type LocalLauncher struct {
	Python string
}

func (l LocalLauncher) Command(ctx context.Context, dir, script string) (*exec.Cmd, error) {
	python := l.Python
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, "-u", filepath.Join(dir, script))
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"MPLBACKEND=Agg",
		"MPLCONFIGDIR="+filepath.Join(dir, "mpl"),
		"PYTHONIOENCODING=utf-8",
	)
	return cmd, nil
}

// DockerLauncher runs the harness inside a long-lived Docker container.
type DockerLauncher struct {
	Image  string
	Policy Policy
}

// NewDockerLauncher creates a launcher with the given image and policy.
func NewDockerLauncher(image string, policy Policy) *DockerLauncher {
	return &DockerLauncher{Image: image, Policy: policy}
}

func (d *DockerLauncher) Command(ctx context.Context, dir, script string) (*exec.Cmd, error) {
	if !d.Policy.IsImageAllowed(d.Image) {
		return nil, fmt.Errorf("%w: %q", ErrImageNotAllowed, d.Image)
	}
	return exec.CommandContext(ctx, "docker", d.args(dir, script)...), nil
}

// Stop kills the container started for dir. Killing the docker client alone
// leaves the container running.
func (d *DockerLauncher) Stop(dir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name := containerName(dir)
	if out, err := exec.CommandContext(ctx, "docker", "kill", name).CombinedOutput(); err != nil {
		return fmt.Errorf("docker kill %s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// containerName derives a container name from the worker's unique directory.
func containerName(dir string) string {
	return "pyrun-" + strings.TrimPrefix(filepath.Base(dir), "pyrun-worker-")
}

func (d *DockerLauncher) args(dir, script string) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", containerName(dir),
		"--memory", d.Policy.MaxMemory,
		"-e", "MPLBACKEND=Agg",
		"-e", "MPLCONFIGDIR=/tmp/mpl",
		"-e", "PYTHONIOENCODING=utf-8",
		"-v", dir + ":/workspace:ro",
		"-w", "/workspace",
	}

	if !d.Policy.Network {
		args = append(args, "--network=none")
	}

	return append(args, d.Image, "python", "-u", "/workspace/"+script)
}
