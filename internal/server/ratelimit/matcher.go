package ratelimit

import "strings"

// resolveEndpoint picks the endpoint configuration for a request. Exact
// matches win over prefix matches; a pattern ending in "/" matches any path
// under it, which is how "/conversations/" covers the per-conversation
// message and reengage routes. The health check is always unlimited so load
// balancer checks never trip the limiter.
func resolveEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range configs {
		if configs[i].Method == method && configs[i].Path == path {
			return &configs[i]
		}
	}
	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}
	return nil
}
