package model

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ProxyScheme is the protocol spoken by an outbound proxy.
type ProxyScheme string

const (
	ProxySchemeHTTP   ProxyScheme = "http"
	ProxySchemeHTTPS  ProxyScheme = "https"
	ProxySchemeSOCKS5 ProxyScheme = "socks5"
)

// Proxy is an outbound network relay used by checkout sessions.
type Proxy struct {
	ID          string
	Scheme      ProxyScheme
	Host        string
	Port        int
	Username    string
	Password    string
	HasBeenUsed bool
	CreatedAt   time.Time
}

// ProxyCredentials are the optional credentials of a proxy.
type ProxyCredentials struct {
	Username string
	Password string
}

// Validate validates the proxy.
func (p Proxy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("proxy id is required: %w", ErrNotValid)
	}
	if p.Host == "" {
		return fmt.Errorf("proxy host is required: %w", ErrNotValid)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("proxy port %d is out of range: %w", p.Port, ErrNotValid)
	}
	switch p.scheme() {
	case ProxySchemeHTTP, ProxySchemeHTTPS, ProxySchemeSOCKS5:
	default:
		return fmt.Errorf("unknown proxy scheme %q: %w", p.Scheme, ErrNotValid)
	}
	return nil
}

// Address returns the host:port of the proxy.
func (p Proxy) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ServerURL returns the proxy URL without credentials, this is the
// form browsers accept in their proxy server setting.
func (p Proxy) ServerURL() string {
	u := url.URL{Scheme: string(p.scheme()), Host: p.Address()}
	return u.String()
}

// URL returns the full proxy URL including credentials if any.
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: string(p.scheme()), Host: p.Address()}
	if creds := p.Credentials(); creds != nil {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}
	return u
}

// Redacted returns the proxy URL safe to be logged.
func (p Proxy) Redacted() string {
	return p.URL().Redacted()
}

// Credentials returns the proxy credentials, nil if the proxy doesn't need authentication.
func (p Proxy) Credentials() *ProxyCredentials {
	if p.Username == "" && p.Password == "" {
		return nil
	}
	return &ProxyCredentials{Username: p.Username, Password: p.Password}
}

func (p Proxy) scheme() ProxyScheme {
	if p.Scheme == "" {
		return ProxySchemeHTTP
	}
	return p.Scheme
}

// ProxyFilter filters proxy listings, nil fields don't filter.
type ProxyFilter struct {
	HasBeenUsed *bool
}
