package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
)

type createPaymentRequest struct {
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	ProcessorIntentID string `json:"processor_intent_id"`
}

type clientTransitionRequest struct {
	Trigger string `json:"trigger"`
}

type paymentResponse struct {
	ID                string     `json:"id"`
	ProcessorIntentID string     `json:"processor_intent_id"`
	State             string     `json:"state"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Version           int64      `json:"version"`
	LastTransitionAt  *time.Time `json:"last_transition_at,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newPaymentResponse(p paymentdomain.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID.String(),
		ProcessorIntentID: p.ProcessorIntentID,
		State:             string(p.State),
		Amount:            p.Amount,
		Currency:          p.Currency,
		Version:           p.Version,
		LastTransitionAt:  p.LastTransitionAt,
		FailureReason:     p.FailureReason,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		Amount:            req.Amount,
		Currency:          req.Currency,
		ProcessorIntentID: req.ProcessorIntentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newPaymentResponse(payment)})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	payment, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(payment)})
}

func (s *Server) ApplyClientTransition(c *gin.Context) {
	var req clientTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.ApplyClientTransition(c.Request.Context(), paymentdomain.ClientTransitionRequest{
		PaymentID: c.Param("id"),
		Trigger:   paymentdomain.ClientTrigger(req.Trigger),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(payment)})
}
