package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domainErr "github.com/Kyver-Studios/Kyver-Invoices/internal/domain/errors"
	"github.com/Kyver-Studios/Kyver-Invoices/internal/invoice"
)

// MaxBodyBytes caps webhook payloads. Stripe and PayPal events are a few KB.
const MaxBodyBytes = 1 << 20

// Handler receives provider webhooks and feeds them to the reconciler.
type Handler struct {
	processors map[invoice.Provider]Processor
	events     EventHandler
	logger     *slog.Logger
}

func NewHandler(events EventHandler, logger *slog.Logger, processors ...Processor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		processors: make(map[invoice.Provider]Processor, len(processors)),
		events:     events,
		logger:     logger.With("component", "webhook"),
	}
	for _, p := range processors {
		h.processors[p.Provider()] = p
	}
	return h
}

// NewRouter wires the webhook and health routes.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), requestLogger(h.logger))

	api := router.Group("/api")
	{
		api.POST("/webhook/:provider", h.handleWebhook)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	return router
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *Handler) handleWebhook(c *gin.Context) {
	provider, err := invoice.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	proc, ok := h.processors[provider]
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": provider.DisplayName() + " is not enabled"})
		return
	}
	log := h.logger.With("provider", provider)

	// 1. Read the raw body. Signatures are computed over these exact bytes.
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	// 2. Verify and normalize
	ev, err := proc.VerifyAndParse(c.Request.Context(), payload, c.Request.Header)
	switch {
	case err == nil:
	case errors.Is(err, domainErr.ErrInvalidSignature):
		log.Warn("rejected webhook with invalid signature", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	case errors.Is(err, domainErr.ErrProviderUnavailable):
		log.Error("could not verify webhook", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification unavailable"})
		return
	default:
		log.Warn("malformed webhook", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	// 3. Reconcile. The provider retries on 5xx only, so every other outcome acks.
	out, err := h.events.Handle(c.Request.Context(), *ev)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":         "processed",
			"invoice_id":     out.InvoiceID.String(),
			"invoice_status": out.Status,
			"applied":        out.Applied,
			"duplicate":      out.Duplicate,
		})
	case errors.Is(err, domainErr.ErrUnknownInvoice):
		c.JSON(http.StatusOK, gin.H{"status": "unknown_invoice"})
	case errors.Is(err, domainErr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainErr.ErrStoreUnavailable):
		log.Error("store unavailable while reconciling, asking provider to retry", "event_id", ev.ExternalEventID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again later"})
	default:
		log.Error("failed to reconcile event", "event_id", ev.ExternalEventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
