// Package model defines shared types for the proxy.
package model

import (
	"io"
	"net/http"
)

// ProxyConfig is the listen/forward pair of one proxy instance.
// An empty string means the URI is not set.
type ProxyConfig struct {
	ProxyURI  string `json:"proxy_uri"`
	TargetURI string `json:"target_uri"`
}

// Complete reports whether both URIs are set.
func (c ProxyConfig) Complete() bool {
	return c.ProxyURI != "" && c.TargetURI != ""
}

// ProxyUpdate is a configuration update delivered to a proxy instance.
//
// A nil *ProxyUpdate means no update was supplied and nothing changes.
// A non-nil update always re-sets both URIs: a nil field clears the value.
type ProxyUpdate struct {
	ProxyURI  *string `json:"proxy_uri"`
	TargetURI *string `json:"target_uri"`
}

// Apply returns cfg with both fields replaced by the update's values.
func (u *ProxyUpdate) Apply(cfg ProxyConfig) ProxyConfig {
	if u == nil {
		return cfg
	}
	return ProxyConfig{
		ProxyURI:  deref(u.ProxyURI),
		TargetURI: deref(u.TargetURI),
	}
}

// NewProxyUpdate builds an update that sets both URIs.
func NewProxyUpdate(proxyURI, targetURI string) *ProxyUpdate {
	return &ProxyUpdate{ProxyURI: &proxyURI, TargetURI: &targetURI}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
