package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/consumer"
)

// StateReporter exposes the consumer loop state.
type StateReporter interface {
	State() consumer.State
}

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerChecker reports whether a broker connection is currently open.
type BrokerChecker interface {
	IsHealthy() bool
}

// HealthHandler reports consumer, broker and store health.
type HealthHandler struct {
	consumer StateReporter
	store    Pinger
	outbound BrokerChecker
	logger   *zap.Logger
}

// NewHealthHandler creates a health handler. consumer is nil when consuming is
// disabled.
func NewHealthHandler(c StateReporter, s Pinger, outbound BrokerChecker, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{consumer: c, store: s, outbound: outbound, logger: logger}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	// Check store
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Store health check failed", zap.Error(err))
		services["store"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		services["store"] = "healthy"
	}

	// Check consumer loop
	if h.consumer == nil {
		services["consumer"] = "disabled"
	} else {
		state := h.consumer.State()
		switch state {
		case consumer.StateSubscribed, consumer.StateProcessing:
			services["consumer"] = state.String()
		default:
			services["consumer"] = "unhealthy: " + state.String()
			status = "unhealthy"
		}
	}

	// The outbound connection re-dials on the next publish, so it is reported
	// without affecting the overall status.
	if h.outbound != nil {
		if h.outbound.IsHealthy() {
			services["rabbitmq_outbound"] = "connected"
		} else {
			services["rabbitmq_outbound"] = "disconnected"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}
