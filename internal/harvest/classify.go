package harvest

import "net/http"

// Classify maps an attempt's HTTP status to a settlement decision. Only 200
// and 404 are terminal; a rate limit (429), a transport failure (status 0),
// and every other status are assumed recoverable by retry-with-delay. The
// retry controller applies the attempt budget that turns a persistent
// transient into ClassFailed.
func Classify(status int) Classification {
	switch status {
	case http.StatusOK:
		return ClassSuccess
	case http.StatusNotFound:
		return ClassAbsent
	default:
		return ClassTransient
	}
}
