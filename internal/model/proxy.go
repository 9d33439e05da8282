// Package model defines shared per-request types for the proxy.
package model

// RouteKind distinguishes the two ways a request can be served.
type RouteKind int

const (
	// RouteStatic requests are served by the static file collaborator.
	RouteStatic RouteKind = iota
	// RouteAPI requests are forwarded upstream.
	RouteAPI
)

func (k RouteKind) String() string {
	switch k {
	case RouteAPI:
		return "api"
	default:
		return "static"
	}
}

// Route is the routing decision made once per request.
type Route struct {
	Kind RouteKind
	// Remainder is the raw request target after the forwarding prefix,
	// query string included. Empty for static routes.
	Remainder string
}

// OutcomeKind tags an UpstreamOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeHTTPError
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	default:
		return "transport_error"
	}
}

// UpstreamOutcome is the result of one upstream call.
//
// For OutcomeSuccess, StatusCode and Body are set. For OutcomeHTTPError,
// StatusCode and Reason are set. For OutcomeTransportError only Message is set.
type UpstreamOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Reason     string
	Message    string
}

// ProxyResponse is the response written back to the client for an API request.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
