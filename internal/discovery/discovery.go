// Package discovery locates the device on the local network by mDNS
// when no address is configured.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandcat/zeroconf"
)

// FindDevice browses for an IPP printer and returns the first address
// found. It gives up after timeout.
func FindDevice(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, "_ipp._tcp", "local.", entries); err != nil {
		return "", fmt.Errorf("mdns browse: %w", err)
	}

	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		addr := entry.AddrIPv4[0].String()
		slog.Info("device discovered", "name", entry.Instance, "addr", addr)
		return addr, nil
	}
	return "", fmt.Errorf("no printer found within %s", timeout)
}
