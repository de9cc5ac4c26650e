package interceptors

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v3"
	"github.com/tipline/go-tipline-server/types"
)

// JWSMiddleware guards the recipient and admin surfaces. The bearer token is
// a compact JWS minted by the access service and verified against the server
// signing key; the subject and role land in the gin context.
func JWSMiddleware(publicKey interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is missing"})
			return
		}
		auth = strings.TrimPrefix(auth, "Bearer ")

		object, err := jose.ParseSigned(auth)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWS message"})
			return
		}
		payload, err := object.Verify(publicKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Failed to verify JWS message"})
			return
		}

		var plMap map[string]interface{}
		if uErr := json.Unmarshal(payload, &plMap); uErr != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload"})
			return
		}
		exp, ok := plMap["exp"].(float64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload (exp missing)"})
			return
		}
		if int64(exp) < time.Now().Unix() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "JWS message expired"})
			return
		}
		sub, ok := plMap["sub"].(string)
		if !ok || sub == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse JWS payload (sub missing)"})
			return
		}
		role, _ := plMap["role"].(string)

		c.Set("recipientID", sub)
		c.Set("role", role)
		c.Next()
	}
}

// AdminMiddleware runs behind JWSMiddleware and requires the admin role
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != types.RecipientRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
