package route

import "proxy-http-go/internal/model"

// Build returns the descriptor forwarding proxyURI to targetURI.
// Both URIs must be non-empty.
func Build(proxyURI, targetURI string) model.RouteDescriptor {
	return model.RouteDescriptor{
		FromURI: MergeOptions(StripTrailingSlash(proxyURI), ListenOptions),
		ToURI:   MergeOptions(StripTrailingSlash(targetURI), ForwardOptions),
	}
}
