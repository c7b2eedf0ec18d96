package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zetadesk/mailgate/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the current state of all IMAP connections
func Status(ingest interfaces.IngestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := ingest.Status()
		c.JSON(http.StatusOK, status)
	}
}

// TriggerAudit re-checks the mailbox tree of every connection on demand
func TriggerAudit(ingest interfaces.IngestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ingest.AuditMailboxes(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status": "audit completed",
		})
	}
}
