// Package proxy builds the HTTP client used for the model service, optionally
// routed through a SOCKS5 proxy.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// NewClient returns a plain client when addr is empty. addr is either
// host:port or a socks5:// URL, optionally with user:password.
func NewClient(addr string, timeout time.Duration) (*http.Client, error) {
	if addr == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	return NewSocksClient(addr, timeout)
}

func NewSocksClient(addr string, timeout time.Duration) (*http.Client, error) {
	host, auth, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		dial = cd.DialContext
	}

	return &http.Client{
		Transport: &http.Transport{DialContext: dial},
		Timeout:   timeout,
	}, nil
}

func parseAddr(addr string) (string, *proxy.Auth, error) {
	if !strings.Contains(addr, "://") {
		return addr, nil, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", nil, fmt.Errorf("parse proxy %q: %w", addr, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return "", nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.User == nil {
		return u.Host, nil, nil
	}
	pass, _ := u.User.Password()
	return u.Host, &proxy.Auth{User: u.User.Username(), Password: pass}, nil
}
