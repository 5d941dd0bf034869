package reliability

// IsRetryableHTTPStatus reports whether a status code signals a transient upstream condition
// (overload or unavailability) rather than a rejection of the request itself. Nothing in the
// turn pipeline retries; callers use this only to classify the failure.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
