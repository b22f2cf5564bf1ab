// Package headless registers the k6/x/headless extension.
package headless

import (
	"github.com/grafana/xk6-headless/browser"

	k6modules "go.k6.io/k6/js/modules"
)

func init() {
	k6modules.Register("k6/x/headless", browser.New())
}
