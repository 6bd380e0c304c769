package helper

import (
	"fmt"

	"github.com/lumichat/credit/common/random"
)

const RequestIdKey = "X-Request-Id"

// GenRequestID returns a sortable request id: timestamp plus random tail.
func GenRequestID() string {
	return GetTimeString() + random.GetUUID()[:8]
}

// MessageWithRequestId appends the request id so users can quote it when
// reporting a problem.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}
