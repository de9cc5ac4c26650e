package apiutil

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetIPFromContext extracts the client address for rate limit fingerprints
// on the authenticated surfaces. The anonymous intake route never calls
// this; nothing network-identifying is derived there.
func GetIPFromContext(c *gin.Context) (*string, error) {
	ip := c.Request.Header.Get("X-Real-IP")
	if len(ip) > 0 {
		return &ip, nil
	}

	ip = c.Request.Header.Get("X-Forwarded-For")
	ipList := strings.Split(ip, ",")
	if len(ipList[0]) > 0 {
		return &ipList[0], nil
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return nil, err
	}
	return &ip, nil
}
