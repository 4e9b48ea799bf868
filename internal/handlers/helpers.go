package handlers

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-Straive-Api-Key"

var whitespaceRun = regexp.MustCompile(`\s+`)

// requestAPIKey returns the per-request provider key override, if any.
func requestAPIKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(apiKeyHeader))
}

// normalizePrompt collapses whitespace runs so cache keys ignore formatting.
func normalizePrompt(prompt string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(prompt), " ")
}
