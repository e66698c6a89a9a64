package web

import (
	"fmt"
	"net"
	"strings"
)

const DefaultAddress = "127.0.0.1:8000"

// ValidateListenAddress keeps the drive on loopback unless remote listeners
// are explicitly allowed.
func ValidateListenAddress(addr string, allowRemote bool) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		trimmed = DefaultAddress
	}

	host, _, err := net.SplitHostPort(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", trimmed, err)
	}

	if allowRemote {
		return trimmed, nil
	}

	if strings.EqualFold(host, "localhost") {
		return trimmed, nil
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return "", fmt.Errorf("listen address %q is not loopback; set server.allow_remote or pass --allow-remote to permit remote listeners", trimmed)
	}
	return trimmed, nil
}
