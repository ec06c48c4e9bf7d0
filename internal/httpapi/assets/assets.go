// Package assets embeds the control plane's static index page.
package assets

import _ "embed"

//go:embed index.html
var Index []byte
