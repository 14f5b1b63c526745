package apperr

import "net/http"

// WebhookAckStatus maps an error to the HTTP status a webhook endpoint
// should return: 5xx only for Transient, so the sender's retry policy
// kicks in; every other kind is ack'd with 2xx even though the event
// was semantically rejected, so a permanently-invalid event doesn't
// turn into a retry storm.
func WebhookAckStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == Transient {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
