package client

// NetworkStatus describes where a watched query is in its request lifecycle.
// Values match the ones GraphQL clients such as Apollo report, so logs and
// dashboards line up with front-end tooling.
type NetworkStatus int

const (
	// StatusLoading is the first fetch of a query.
	StatusLoading NetworkStatus = 1
	// StatusSetVariables is a fetch caused by new variables.
	StatusSetVariables NetworkStatus = 2
	// StatusFetchMore is an incremental fetch extending the result window.
	StatusFetchMore NetworkStatus = 3
	// StatusRefetch is an explicit refetch.
	StatusRefetch NetworkStatus = 4
	// StatusPoll is a polling fetch.
	StatusPoll NetworkStatus = 6
	// StatusReady means no request is in flight and the last one succeeded.
	StatusReady NetworkStatus = 7
	// StatusError means no request is in flight and the last one failed.
	StatusError NetworkStatus = 8
)

// InFlight reports whether a request is currently running.
func (s NetworkStatus) InFlight() bool {
	return s > 0 && s < StatusReady
}

func (s NetworkStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSetVariables:
		return "setVariables"
	case StatusFetchMore:
		return "fetchMore"
	case StatusRefetch:
		return "refetch"
	case StatusPoll:
		return "poll"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
