package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/app/models"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/billing"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/usercontext"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	billingRequestTimeout = 15 * time.Second
)

// BillingService is the part of billing.Service the HTTP layer uses
type BillingService interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, signatureHeader string) (billing.Outcome, error)
	GetActiveSubscription(ctx context.Context, userID uint) (*models.Subscription, error)
	ListInvoices(ctx context.Context, userID uint) ([]models.Invoice, error)
	CreateCheckoutSession(ctx context.Context, userID uint, priceID string) (*billing.CheckoutSession, error)
	RequestCancellation(ctx context.Context, userID uint) (*models.Subscription, error)
}

// BillingController serves the provider webhook and the user billing endpoints
type BillingController struct {
	service  BillingService
	validate *validator.Validate
}

// NewBillingController creates a billing controller on top of service
func NewBillingController(service BillingService) *BillingController {
	return &BillingController{service: service, validate: validator.New()}
}

type checkoutRequest struct {
	PriceID string `json:"price_id" validate:"required,max=191"`
}

// HandleWebhook answers POST /webhooks/:provider
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	rawBody := append([]byte(nil), c.Body()...)
	signature := strings.TrimSpace(c.Get(stripeSignatureHeader))

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	outcome, err := bc.service.HandleWebhook(ctx, provider, rawBody, signature)
	if err != nil {
		if billing.IsType(err, billing.ErrorTypeAuthentication) {
			log.Warnw("rejected webhook delivery", "provider", provider, "error", err)
		}
		return billingErrorResponse(c, err)
	}

	resp := fiber.Map{"received": true, "outcome": outcome}
	switch outcome {
	case billing.OutcomeDuplicate:
		resp["duplicate"] = true
	case billing.OutcomeIgnored:
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleGetSubscription answers GET /api/v1/billing/subscription
func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	sub, err := bc.service.GetActiveSubscription(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleListInvoices answers GET /api/v1/billing/invoices
func (bc *BillingController) HandleListInvoices(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	invoices, err := bc.service.ListInvoices(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return c.JSON(fiber.Map{"invoices": invoices, "count": len(invoices)})
}

// HandleCreateCheckout answers POST /api/v1/billing/checkout
func (bc *BillingController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	req.PriceID = strings.TrimSpace(req.PriceID)
	if err := bc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "price_id is required"})
	}

	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	session, err := bc.service.CreateCheckoutSession(ctx, userCtx.UserID, req.PriceID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// HandleCancelSubscription answers POST /api/v1/billing/subscription/cancel
func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	sub, err := bc.service.RequestCancellation(ctx, userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"subscription": sub, "cancellation_requested": true})
}

// billingErrorResponse renders a billing failure with the status its type maps to
func billingErrorResponse(c *fiber.Ctx, err error) error {
	status := billing.StatusCode(err)
	errType := string(billing.ErrorTypeInternal)
	message := "Internal server error"
	if be, ok := billing.AsError(err); ok {
		errType = string(be.Type)
		message = be.Message
	} else if billing.IsNotFound(err) {
		errType = string(billing.ErrorTypeNotFound)
		message = "Not found"
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorw("billing request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": errType, "message": message})
}
