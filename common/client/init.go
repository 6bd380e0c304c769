package client

import (
	"net/http"
	"time"

	"github.com/lumichat/credit/common/config"
)

// UserContentRequestHTTPClient fetches user-provided content (image URLs) during
// token estimation. It is bounded so a slow remote host cannot stall billing.
var UserContentRequestHTTPClient *http.Client

// PaymentHTTPClient talks to the payment gateway.
var PaymentHTTPClient *http.Client

func init() {
	UserContentRequestHTTPClient = &http.Client{
		Timeout: time.Duration(config.UserContentRequestTimeoutSec) * time.Second,
	}
	PaymentHTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}
}
