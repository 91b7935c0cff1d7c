package transport

import "net/http"

// Headers identifying requests sent by the client.
const (
	// HeaderRequest is "true" on every request the client sends.
	HeaderRequest = "HX-Request"
	// HeaderTarget carries the id of the component the response applies to.
	HeaderTarget = "HX-Target"
	// HeaderTrigger carries the name of the event that caused the request.
	HeaderTrigger = "HX-Trigger"
	// HeaderPage carries the originating page id.
	HeaderPage = "HX-Page"
)

// IdentityHeader builds the identification headers for a request. Empty
// values are left out.
func IdentityHeader(target, trigger, page string) http.Header {
	h := http.Header{}
	if target != "" {
		h.Set(HeaderTarget, target)
	}
	if trigger != "" {
		h.Set(HeaderTrigger, trigger)
	}
	if page != "" {
		h.Set(HeaderPage, page)
	}
	return h
}

// IsClientRequest reports whether r was sent by the client.
//
// Servers use it to decide between a fragment and a full page:
//
//	if transport.IsClientRequest(r) {
//	    return fragment()
//	}
func IsClientRequest(r *http.Request) bool {
	return r.Header.Get(HeaderRequest) == "true"
}

// TargetID returns the id of the component the response will replace, or ""
// for page-level requests.
func TargetID(r *http.Request) string {
	return r.Header.Get(HeaderTarget)
}

// TriggerName returns the event that caused the request.
func TriggerName(r *http.Request) string {
	return r.Header.Get(HeaderTrigger)
}

// PageID returns the originating page id.
func PageID(r *http.Request) string {
	return r.Header.Get(HeaderPage)
}
