package browser

import (
	"github.com/grafana/xk6-headless/api"
)

// mapRequest to the JS module.
func mapRequest(r api.NetworkRequest) mapping {
	return mapping{
		"method":              r.Method,
		"url":                 r.URL,
		"isNavigationRequest": r.IsMainFrame,
	}
}
