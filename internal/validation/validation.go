// Package validation provides input validation helpers and middleware for the Matchpit API.
package validation

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// MaxEvidenceURLs is the maximum number of evidence URLs per proof submission
const MaxEvidenceURLs = 10

var (
	// userIDRegex validates platform user identifiers
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{2,63}$`)
	// wagerIDRegex validates wager identifiers issued by this service
	wagerIDRegex = regexp.MustCompile(`^wgr_[a-f0-9]{24}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUserID checks if a string is a valid platform user identifier
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// IsValidWagerID checks if a string is a wager identifier issued by this service
func IsValidWagerID(id string) bool {
	return wagerIDRegex.MatchString(id)
}

// IsValidEvidenceURL checks that an evidence link is an absolute http(s) URL
func IsValidEvidenceURL(raw string) bool {
	if len(raw) > 2048 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidUserID checks if a field is a valid platform user identifier
func ValidUserID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidUserID(value) {
			return &ValidationError{Field: field, Message: "must be a valid user identifier"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidEvidenceURLs checks that each evidence link is a well-formed http(s) URL
func ValidEvidenceURLs(field string, urls []string) func() *ValidationError {
	return func() *ValidationError {
		if len(urls) > MaxEvidenceURLs {
			return &ValidationError{Field: field, Message: "too many evidence urls"}
		}
		for _, u := range urls {
			if !IsValidEvidenceURL(u) {
				return &ValidationError{Field: field, Message: "must contain only http(s) urls"}
			}
		}
		return nil
	}
}

// WagerIDParamMiddleware validates the :wagerId URL parameter on routes
// that use it, rejecting malformed ids before the handler runs.
func WagerIDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("wagerId")
		if id != "" && !IsValidWagerID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_wager_id",
				"message": "id must be a wager identifier (wgr_ + 24 hex chars)",
			})
			return
		}
		c.Next()
	}
}

// PositiveAmount checks that a stake amount is greater than zero
func PositiveAmount(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}
