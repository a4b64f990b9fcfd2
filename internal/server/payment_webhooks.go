package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandleGoCardlessWebhook answers 204 for every authenticated batch, even
// when the batch does not parse or individual events fail, so GoCardless
// does not retry events that were already claimed. A body over the cap is
// refused before its signature can be checked.
func (s *Server) HandleGoCardlessWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err))
		return
	}
	if len(payload) > maxWebhookBodyBytes {
		AbortWithError(c, fmt.Errorf("%w: body too large", paymentdomain.ErrInvalidPayload))
		return
	}

	processorID := strings.TrimSpace(c.Param("processor_id"))
	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), processorID, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result != nil {
		c.Set("webhook_events_processed", len(result.Processed))
	}
	c.Status(http.StatusNoContent)
}
