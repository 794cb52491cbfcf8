package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when
// running in a container, so the server can reach PostgreSQL or Redis
// running on the host machine.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}

	return host
}

// ResolveHosts applies ResolveHostForDocker to every backing service.
func (c *Config) ResolveHosts() {
	c.Database.Host = ResolveHostForDocker(c.Database.Host)
	if c.Redis.Host != "" {
		c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
	}
}
