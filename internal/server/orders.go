package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
)

type placeOrderRequest struct {
	Contact   string `json:"contact"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	PanelType string `json:"panel_type"`
}

func (r placeOrderRequest) toDomain(clientIP string) orderdomain.PlaceOrderRequest {
	contact := strings.TrimSpace(r.Contact)
	if contact == "" {
		contact = strings.TrimSpace(r.Email)
	}
	tier := strings.TrimSpace(r.Tier)
	if tier == "" {
		tier = strings.TrimSpace(r.PanelType)
	}
	return orderdomain.PlaceOrderRequest{Contact: contact, Tier: tier, ClientIP: clientIP}
}

type placeOrderResponse struct {
	OrderID       string    `json:"order_id"`
	PaymentNumber string    `json:"payment_number"`
	QRISString    string    `json:"qris_string"`
	ExpiresAt     time.Time `json:"expires_at"`
	QRImageURL    string    `json:"qr_image_url"`
	Amount        int64     `json:"amount"`
	Tier          string    `json:"tier"`
	Status        string    `json:"status"`
}

// orderView is the public order shape. Credentials are never included.
type orderView struct {
	OrderID       string    `json:"order_id"`
	Tier          string    `json:"tier"`
	Amount        int64     `json:"amount"`
	PaymentNumber string    `json:"payment_number"`
	QRISString    string    `json:"qris_string"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	Provisioned   bool      `json:"provisioned"`
	ServerName    string    `json:"server_name,omitempty"`
	PanelURL      string    `json:"panel_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newOrderView(order orderdomain.Order) orderView {
	view := orderView{
		OrderID:       order.ID,
		Tier:          string(order.Tier),
		Amount:        order.Amount,
		PaymentNumber: order.PaymentNumber,
		QRISString:    order.QRISString,
		Status:        string(order.Status),
		ExpiresAt:     order.ExpiresAt,
		Provisioned:   order.IsProvisioned(),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.Provisioned != nil {
		view.ServerName = order.Provisioned.ServerName
		view.PanelURL = order.Provisioned.PanelURL
	}
	return view
}

func newPlaceOrderResponse(res orderdomain.PlaceOrderResult) placeOrderResponse {
	return placeOrderResponse{
		OrderID:       res.Order.ID,
		PaymentNumber: res.Order.PaymentNumber,
		QRISString:    res.Order.QRISString,
		ExpiresAt:     res.Order.ExpiresAt,
		QRImageURL:    res.QRImageURL,
		Amount:        res.Order.Amount,
		Tier:          string(res.Order.Tier),
		Status:        string(res.Order.Status),
	}
}

func (s *Server) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.orderSvc.PlaceOrder(c.Request.Context(), req.toDomain(c.ClientIP()))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newPlaceOrderResponse(res))
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.orderSvc.GetOrder(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOrderView(order))
}

func (s *Server) CheckOrderStatus(c *gin.Context) {
	res, err := s.orderSvc.CheckPaymentStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ProvisionOrder(c *gin.Context) {
	resource, err := s.orderSvc.ProvisionResource(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resource": resource})
}

func (s *Server) LegacyCreateOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.orderSvc.PlaceOrder(c.Request.Context(), req.toDomain(c.ClientIP()))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   newOrderView(res.Order),
		"qr_url":  res.QRImageURL,
	})
}

func (s *Server) LegacyCheckPayment(c *gin.Context) {
	res, err := s.orderSvc.CheckPaymentStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"status":      res.Status,
		"order_id":    res.OrderID,
		"expiry_time": res.ExpiresAt,
	})
}

type legacyCreatePanelRequest struct {
	OrderID string `json:"order_id"`
}

func (s *Server) LegacyCreatePanel(c *gin.Context) {
	var req legacyCreatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		AbortWithError(c, orderdomain.ErrInvalidOrderID)
		return
	}

	resource, err := s.orderSvc.ProvisionResource(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"panel":   resource,
		"message": "Panel berhasil dibuat!",
	})
}
