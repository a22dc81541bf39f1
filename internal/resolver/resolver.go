// Package resolver resolves hostnames with a timeout.
package resolver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

var (
	// ErrNoAddress indicates that the hostname did not resolve to any usable address.
	ErrNoAddress = errors.New("no address for host")
	// ErrInvalidPort indicates that the port number in the address is invalid.
	ErrInvalidPort = errors.New("invalid port number")
)

// Resolve `hostport` to an IP address.
func Resolve(ctx context.Context, hostport string, timeout time.Duration) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, err
	}
	if port <= 0 || port > 65535 {
		return nil, 0, ErrInvalidPort
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip, err = ResolveHost(ctx, timeout, host)
		if err != nil {
			return nil, 0, err
		}
	}
	return ip, port, nil
}

// ResolveHost resolves `host` to an IP address, preferring IPv4.
func ResolveHost(ctx context.Context, timeout time.Duration, host string) (net.IP, error) {
	var cancel func()
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ia := range addrs {
		if i4 := ia.IP.To4(); i4 != nil {
			return i4, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, ErrNoAddress
}
