package markup

import (
	"strings"

	"github.com/pthm/hxclient/lib/script"
)

// Capabilities describes how a DOM engine behaves when element content is
// replaced.
type Capabilities struct {
	// TableSections is true when table section elements (tbody, tr, td, ...)
	// can be replaced through outer content assignment.
	TableSections bool
	// IframeSafeParse is true when parsing markup into a detached container
	// does not start loading iframes it contains.
	IframeSafeParse bool
	// ContextualFragments is true when the engine can build a fragment parsed
	// in the context of a given node.
	ContextualFragments bool
}

// Probe picks the strategy matching c.
func Probe(c Capabilities, scripts ScriptRunner, eval script.Evaluator, opts ...Option) Replacer {
	switch {
	case !c.TableSections || !c.IframeSafeParse:
		return NewIsolated(scripts, eval, opts...)
	case c.ContextualFragments:
		return NewContextual(scripts, eval, opts...)
	default:
		return NewSiblingScan(scripts, eval, opts...)
	}
}

// CapabilitiesFor derives capabilities from a user agent string. Unknown
// agents are assumed to be standards compliant.
func CapabilitiesFor(userAgent string) Capabilities {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident/"):
		return Capabilities{}
	case strings.Contains(ua, "applewebkit") || strings.Contains(ua, "opera") || strings.Contains(ua, "opr/"):
		return Capabilities{TableSections: true, IframeSafeParse: true}
	default:
		return Capabilities{TableSections: true, IframeSafeParse: true, ContextualFragments: true}
	}
}
