package main

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
)

// discoverServer browses for the first chatserver instance advertised via
// mDNS and returns a dialable address, mirroring the browse side of
// cmd/chatserver/mdns.go's Register call.
func discoverServer(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 4)
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, mdnsServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("browse: %w", err)
	}

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return "", fmt.Errorf("no chatserver instance found within %s", timeout)
		}
		if len(entry.AddrIPv4) == 0 {
			return "", fmt.Errorf("discovered instance %s has no IPv4 address", entry.Instance)
		}
		return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port), nil
	case <-browseCtx.Done():
		return "", fmt.Errorf("no chatserver instance found within %s", timeout)
	}
}

const mdnsServiceType = "_chatserver._tcp"
