package httpconn

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/net/proxy"

	"github.com/cenkalti/webseed/internal/resolver"
)

// ProxyType selects how outgoing HTTP traffic is routed.
type ProxyType int

const (
	// ProxyNone connects to origins directly.
	ProxyNone ProxyType = iota
	// ProxyHTTP sends absolute-form requests to an HTTP proxy.
	ProxyHTTP
	// ProxyHTTPS is like ProxyHTTP over TLS to the proxy.
	ProxyHTTPS
	// ProxySOCKS5 dials through a SOCKS5 proxy.
	ProxySOCKS5
)

// ProxyConfig describes an upstream proxy for web seed traffic.
type ProxyConfig struct {
	Type     ProxyType
	Host     string
	Port     int
	Username string
	Password string
	// ProxyHostnames makes the proxy resolve origin hostnames instead of
	// resolving them locally.
	ProxyHostnames bool
}

func (c ProxyConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ProxyConfig) url() *url.URL {
	scheme := "http"
	if c.Type == ProxyHTTPS {
		scheme = "https"
	}
	u := &url.URL{Scheme: scheme, Host: c.addr()}
	// Basic auth is added iff both username and password are set.
	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u
}

// configureTransport wires proxying and dialing into t per cfg.
//
// For HTTP proxies, net/http sends the absolute-form request URI and a
// Proxy-Authorization header derived from the proxy URL userinfo; DNS for the
// origin happens at the proxy, CONNECT is not used for plain http targets.
func configureTransport(t *http.Transport, cfg Config) error {
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	switch cfg.Proxy.Type {
	case ProxyHTTP, ProxyHTTPS:
		t.Proxy = http.ProxyURL(cfg.Proxy.url())
		t.DialContext = d.DialContext
	case ProxySOCKS5:
		var auth *proxy.Auth
		if cfg.Proxy.Username != "" && cfg.Proxy.Password != "" {
			auth = &proxy.Auth{User: cfg.Proxy.Username, Password: cfg.Proxy.Password}
		}
		sd, err := proxy.SOCKS5("tcp", cfg.Proxy.addr(), auth, d)
		if err != nil {
			return err
		}
		cd := sd.(proxy.ContextDialer)
		if cfg.Proxy.ProxyHostnames {
			// SOCKS5 accepts hostname addresses; the proxy resolves them.
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				ip, port, err := resolver.Resolve(ctx, addr, cfg.ConnectTimeout)
				if err != nil {
					return nil, err
				}
				return cd.DialContext(ctx, network, net.JoinHostPort(ip.String(), strconv.Itoa(port)))
			}
		}
	default:
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			ip, port, err := resolver.Resolve(ctx, addr, cfg.ConnectTimeout)
			if err != nil {
				return nil, err
			}
			return d.DialContext(ctx, network, net.JoinHostPort(ip.String(), strconv.Itoa(port)))
		}
	}
	return nil
}
