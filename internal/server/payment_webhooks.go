package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/novabot503/novacat/internal/observability/logger"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"go.uber.org/zap"
)

const webhookProviderPakasir = "pakasir"

// pakasirWebhookPayload accepts both field spellings the gateway has used.
type pakasirWebhookPayload struct {
	OrderID           string      `json:"order_id"`
	OrderIDAlt        string      `json:"orderId"`
	Status            string      `json:"status"`
	TransactionStatus string      `json:"transaction_status"`
	Amount            json.Number `json:"amount"`
}

func (p pakasirWebhookPayload) toDomain() orderdomain.CallbackPayload {
	orderID := strings.TrimSpace(p.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(p.OrderIDAlt)
	}
	status := strings.TrimSpace(p.Status)
	if status == "" {
		status = strings.TrimSpace(p.TransactionStatus)
	}
	amount, _ := p.Amount.Int64()
	return orderdomain.CallbackPayload{OrderID: orderID, Status: status, Amount: amount}
}

// HandlePakasirWebhook acknowledges every well-formed callback with 200 so the
// gateway does not retry, including callbacks for orders this instance lacks.
func (s *Server) HandlePakasirWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := obslogger.WithContext(ctx, s.log)

	if !validWebhookToken(s.cfg.WebhookToken, c.Query("token")) {
		s.obsMetrics.RecordWebhook(ctx, webhookProviderPakasir, "unauthorized")
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body pakasirWebhookPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		s.obsMetrics.RecordWebhook(ctx, webhookProviderPakasir, "invalid")
		AbortWithError(c, invalidRequestError())
		return
	}
	payload := body.toDomain()
	if payload.OrderID == "" {
		s.obsMetrics.RecordWebhook(ctx, webhookProviderPakasir, "invalid")
		AbortWithError(c, newValidationError("order_id", "required", "No order_id"))
		return
	}

	res, err := s.orderSvc.HandleProviderCallback(ctx, payload)
	if err != nil {
		log.Error("webhook processing failed", zap.String("order_id", payload.OrderID), zap.Error(err))
		s.obsMetrics.RecordWebhook(ctx, webhookProviderPakasir, "error")
		c.JSON(http.StatusOK, gin.H{"status": "ok", "order_id": payload.OrderID, "processed": false})
		return
	}

	outcome := "processed"
	switch {
	case !res.Known:
		outcome = "unknown_order"
	case res.ProvisionError != "":
		outcome = "provision_failed"
		log.Warn("webhook provisioning failed", zap.String("order_id", res.OrderID), zap.String("detail", res.ProvisionError))
	}
	s.obsMetrics.RecordWebhook(ctx, webhookProviderPakasir, outcome)

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"order_id":    payload.OrderID,
		"known":       res.Known,
		"provisioned": res.Provisioned,
	})
}
