// Package route builds route descriptors and manages the lifecycle of the
// routes a single proxy instance owns inside a shared routing engine.
package route

import "strings"

// Fixed engine options for each endpoint role.
const (
	ListenOptions  = "matchOnUriPrefix=false&continuationTimeout=0"
	ForwardOptions = "bridgeEndpoint=true&throwExceptionOnFailure=false"
)

// StripTrailingSlash drops a single trailing "/" from uri.
func StripTrailingSlash(uri string) string {
	return strings.TrimSuffix(uri, "/")
}

// MergeOptions appends options to base, joining with "&" when base already
// carries a query string and with "?" otherwise.
func MergeOptions(base, options string) string {
	if strings.Contains(base, "?") {
		return base + "&" + options
	}
	return base + "?" + options
}
