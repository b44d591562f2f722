package middleware

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// ContextKeyParticipantID is the gin context key holding the authenticated
// participant id (a string).
const ContextKeyParticipantID = "participant_id"

// identityClaims are tried in order; the first present wins.
var identityClaims = []string{"participant_id", "user_id", "sub"}

var (
	// ErrMissingToken means neither the Authorization header nor the token
	// query parameter carried a token.
	ErrMissingToken = errors.New("missing bearer token")
	errNoIdentity   = errors.New("token carries no participant identity")
)

// Auth returns a gin middleware that verifies an HS256 JWT issued by the
// identity layer and stores the participant id in the context. Websocket
// clients that cannot set headers may pass the token as ?token=.
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				logrus.Warn("Auth middleware: Missing bearer token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) {
				if validationError.Errors&jwt.ValidationErrorExpired != 0 {
					logCtx.Warn("Reason: Token is expired")
				}
				if validationError.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
					logCtx.Warn("Reason: Token signature is invalid")
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		participantID, err := participantFromClaims(claims)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Token without usable identity")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not identify a participant"})
			c.Abort()
			return
		}

		c.Set(ContextKeyParticipantID, participantID)
		logrus.WithField("participant_id", participantID).Debug("Auth middleware: Participant authenticated via JWT")
		c.Next()
	}
}

// ParticipantID returns the authenticated participant id set by Auth.
func ParticipantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyParticipantID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}

// participantFromClaims accepts string ids and integral numeric ids.
func participantFromClaims(claims jwt.MapClaims) (string, error) {
	for _, name := range identityClaims {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v, nil
			}
		case float64:
			if v > 0 && v == math.Trunc(v) && v < 1<<53 {
				return strconv.FormatInt(int64(v), 10), nil
			}
		}
		return "", fmt.Errorf("claim %q has unusable value %v", name, raw)
	}
	return "", errNoIdentity
}
