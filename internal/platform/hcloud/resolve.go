// Package hcloud resolves target machine identities against the Hetzner Cloud
// API.
//
// Provisioning itself is out of scope; this package only looks up an
// already-running server by name so operators can point the installer at a
// machine without copying its IP address around.
package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ServerGetter is the slice of the Hetzner API the resolver needs.
// Tests substitute a fake; production uses hcloud.Client.Server.
type ServerGetter interface {
	GetByName(ctx context.Context, name string) (*hcloud.Server, *hcloud.Response, error)
}

// Resolver looks up server addresses by name.
type Resolver struct {
	servers ServerGetter
}

// NewResolver creates a resolver from an API token.
func NewResolver(token string) *Resolver {
	client := hcloud.NewClient(hcloud.WithToken(token))
	return &Resolver{servers: &client.Server}
}

// NewResolverWithGetter creates a resolver with a custom server getter.
func NewResolverWithGetter(servers ServerGetter) *Resolver {
	return &Resolver{servers: servers}
}

// ResolveIPv4 returns the public IPv4 address of the named server.
func (r *Resolver) ResolveIPv4(ctx context.Context, name string) (string, error) {
	server, _, err := r.servers.GetByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up server %q: %w", name, err)
	}
	if server == nil {
		return "", fmt.Errorf("server %q not found", name)
	}
	if server.PublicNet.IPv4.IsUnspecified() || server.PublicNet.IPv4.IP == nil {
		return "", fmt.Errorf("server %q has no public IPv4 address", name)
	}
	return server.PublicNet.IPv4.IP.String(), nil
}
