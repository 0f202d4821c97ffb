// requestid.go tags every request with an identifier that the request logger
// and audit trail pick up, and echoes it back to the caller for correlation.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier on the wire.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the identifier is
	// stored for handlers and downstream middleware.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware ensures every request carries an identifier. An inbound
// X-Request-ID from a gateway or load balancer is kept as long as it parses as
// a UUID; anything else is replaced with a fresh one, since the header is
// caller-controlled and its value flows into audit log records.
//
// Register this before the metrics and logging middleware so every downstream
// record carries the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
