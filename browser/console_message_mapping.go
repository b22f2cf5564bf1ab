package browser

import (
	"github.com/grafana/xk6-headless/api"
)

// mapConsoleMessage to the JS module.
func mapConsoleMessage(m api.ConsoleMessage) mapping {
	return mapping{
		"type": m.Level,
		"text": m.Message,
	}
}
