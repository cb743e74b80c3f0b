// ABOUTME: Embeds the HTML transcript template into the binary using go:embed
// ABOUTME: Provides templateFS for loading the page template at runtime

package export

import "embed"

//go:embed templates/*.html
var templateFS embed.FS
