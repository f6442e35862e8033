package engine

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Endpoint option names understood by the engine.
const (
	optMatchOnURIPrefix    = "matchOnUriPrefix"
	optContinuationTimeout = "continuationTimeout"
	optBridgeEndpoint      = "bridgeEndpoint"
	optThrowOnFailure      = "throwExceptionOnFailure"
)

var (
	// ErrUnsupportedScheme is returned for endpoint URIs the engine cannot serve.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	// ErrInvalidEndpoint is returned for malformed endpoint URIs and options.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// ListenEndpoint is the parsed consuming side of a route.
type ListenEndpoint struct {
	// Addr is the host:port the route listens on.
	Addr string
	// Path is the request path the route serves; never empty.
	Path string
	// MatchPrefix also matches requests below Path.
	MatchPrefix bool
	// Timeout bounds each forwarded request. Zero means no bound.
	Timeout time.Duration
}

// matches reports whether the request path is served by the endpoint and
// returns the part of the path below Path.
func (l ListenEndpoint) matches(path string) (string, bool) {
	if path == l.Path {
		return "", true
	}
	if !l.MatchPrefix {
		return "", false
	}
	if l.Path == "/" {
		return path, true
	}
	if strings.HasPrefix(path, l.Path+"/") {
		return strings.TrimPrefix(path, l.Path), true
	}
	return "", false
}

// ForwardEndpoint is the parsed producing side of a route.
type ForwardEndpoint struct {
	// Target is the upstream URL with engine options removed.
	Target *url.URL
	// Bridge forwards to Target's path instead of appending the incoming path.
	Bridge bool
	// ThrowOnFailure turns upstream responses with status >= 300 into errors.
	ThrowOnFailure bool
}

// upstreamURL returns the URL an incoming request is forwarded to. suffix is
// the part of the incoming path below the listen path.
func (f ForwardEndpoint) upstreamURL(incoming *url.URL, suffix string) string {
	u := *f.Target
	if f.Bridge {
		u.Path = joinPath(f.Target.Path, suffix)
	} else {
		u.Path = joinPath(f.Target.Path, incoming.Path)
	}
	u.RawPath = ""
	u.RawQuery = joinQuery(f.Target.RawQuery, incoming.RawQuery)
	return u.String()
}

// ParseListen parses the from-URI of a route.
//
// Only http is served. The port defaults to 80. Query parameters other than
// the engine options are ignored.
func ParseListen(uri string) (ListenEndpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ListenEndpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" {
		return ListenEndpoint{}, fmt.Errorf("%w %q in listen endpoint %s", ErrUnsupportedScheme, u.Scheme, uri)
	}
	if u.Hostname() == "" {
		return ListenEndpoint{}, fmt.Errorf("%w: listen endpoint %s has no host", ErrInvalidEndpoint, uri)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}

	q := u.Query()
	matchPrefix, err := boolOption(q, optMatchOnURIPrefix, false)
	if err != nil {
		return ListenEndpoint{}, err
	}
	timeoutMS, err := intOption(q, optContinuationTimeout)
	if err != nil {
		return ListenEndpoint{}, err
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return ListenEndpoint{
		Addr:        net.JoinHostPort(u.Hostname(), port),
		Path:        path,
		MatchPrefix: matchPrefix,
		Timeout:     time.Duration(timeoutMS) * time.Millisecond,
	}, nil
}

// ParseForward parses the to-URI of a route. Query parameters other than
// the engine options stay on the target and are sent upstream.
func ParseForward(uri string) (ForwardEndpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ForwardEndpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ForwardEndpoint{}, fmt.Errorf("%w %q in forward endpoint %s", ErrUnsupportedScheme, u.Scheme, uri)
	}
	if u.Host == "" {
		return ForwardEndpoint{}, fmt.Errorf("%w: forward endpoint %s has no host", ErrInvalidEndpoint, uri)
	}

	q := u.Query()
	bridge, err := boolOption(q, optBridgeEndpoint, false)
	if err != nil {
		return ForwardEndpoint{}, err
	}
	throwOnFailure, err := boolOption(q, optThrowOnFailure, true)
	if err != nil {
		return ForwardEndpoint{}, err
	}
	u.RawQuery = dropOptions(u.RawQuery, optBridgeEndpoint, optThrowOnFailure)

	return ForwardEndpoint{
		Target:         u,
		Bridge:         bridge,
		ThrowOnFailure: throwOnFailure,
	}, nil
}

// boolOption removes name from q and returns its value, or def when absent.
func boolOption(q url.Values, name string, def bool) (bool, error) {
	if !q.Has(name) {
		return def, nil
	}
	raw := q.Get(name)
	q.Del(name)
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: option %s=%q is not a boolean", ErrInvalidEndpoint, name, raw)
	}
	return v, nil
}

// intOption removes name from q and returns its non-negative value, or 0
// when absent.
func intOption(q url.Values, name string) (int, error) {
	if !q.Has(name) {
		return 0, nil
	}
	raw := q.Get(name)
	q.Del(name)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: option %s=%q is not a non-negative integer", ErrInvalidEndpoint, name, raw)
	}
	return v, nil
}

// dropOptions removes the pairs named in names from a raw query. Other pairs
// keep their order and escaping.
func dropOptions(rawQuery string, names ...string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, pair := range strings.Split(rawQuery, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && slices.Contains(names, k) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func joinPath(base, p string) string {
	if p == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

func joinQuery(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "&" + b
	}
}
