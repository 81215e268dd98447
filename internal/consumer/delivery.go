package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/models"
	"github.com/marminbh/toxicity-score-svc/internal/processor"
	"github.com/marminbh/toxicity-score-svc/internal/scoring"
)

// decision is the terminal result of one delivery.
type decision struct {
	messageID string
	operation string
	ack       bool
	requeue   bool
	// transient marks a failure of the store rather than of the message.
	transient bool
	reason    processor.Reason
	err       error
}

// handleDelivery runs the pipeline for d and always settles it. Processing
// runs on a context that outlives a stop request but is bounded by the
// processing timeout. It reports whether the delivery was requeued because the
// store could not be reached.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) bool {
	c.setState(StateProcessing)
	defer c.setState(StateSubscribed)

	start := c.now()
	pctx, cancel := c.processingContext(ctx)
	defer cancel()

	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))
	log.Info("Received message from queue",
		zap.String("queue", c.cfg.Inbound.Queue),
		zap.String("routing_key", d.RoutingKey),
		zap.Bool("redelivered", d.Redelivered),
	)

	dec := c.safeProcess(pctx, log, d)

	status := models.StatusFailed
	if dec.ack {
		status = models.StatusProcessed
	}
	event := models.OutcomeEvent{
		MessageID:   dec.messageID,
		Type:        dec.operation,
		Status:      status,
		ProcessedAt: c.now(),
		ResultID:    c.newID(),
	}
	c.publisher.Publish(pctx, event)

	c.settle(d, dec.ack, dec.requeue)

	fields := []zap.Field{
		zap.String("message_id", dec.messageID),
		zap.String("type", dec.operation),
		zap.String("status", string(status)),
		zap.String("result_id", event.ResultID),
	}
	if dec.ack {
		log.Info("Message from queue processed successfully", fields...)
	} else {
		log.Warn("Message from queue failed",
			append(fields,
				zap.String("reason", string(dec.reason)),
				zap.Bool("requeue", dec.requeue),
				zap.Bool("transient", dec.transient),
				zap.Error(dec.err),
			)...,
		)
	}
	c.metrics.ObserveDelivery(metricOperation(dec.operation), string(status), c.now().Sub(start).Seconds())
	return dec.transient
}

func (c *Consumer) processingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.cfg.ProcessingTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.cfg.ProcessingTimeout)
}

// safeProcess turns a panic in the pipeline into a failed decision.
func (c *Consumer) safeProcess(ctx context.Context, log *zap.Logger, d amqp.Delivery) (dec decision) {
	dec = decision{messageID: models.UnknownMessageID, operation: models.UnknownType}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while processing message",
				zap.String("message_id", dec.messageID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			dec.ack = false
			dec.requeue = c.cfg.RequeueOnFailure
			dec.reason = processor.ReasonInternal
			dec.err = fmt.Errorf("panic: %v", r)
		}
	}()
	c.process(ctx, log, d.Body, &dec)
	return dec
}

// process fills dec as it learns more about the delivery, so a panic part way
// through still reports the message id.
func (c *Consumer) process(ctx context.Context, log *zap.Logger, body []byte, dec *decision) {
	var in models.InboundEvent
	if err := json.Unmarshal(body, &in); err != nil {
		dec.requeue = c.cfg.RequeueOnDecodeFailure
		dec.reason = processor.ReasonInvalidPayload
		dec.err = fmt.Errorf("decode message: %w", err)
		return
	}
	if in.ID != "" {
		dec.messageID = in.ID
	}
	if in.Type != "" {
		dec.operation = in.Type
	}
	dec.requeue = c.cfg.RequeueOnFailure

	if err := in.Validate(); err != nil {
		dec.reason = processor.ReasonInvalidPayload
		dec.err = err
		return
	}

	score, err := c.score(ctx, log, in)
	if err != nil {
		dec.reason = processor.ReasonScoringFailed
		dec.err = err
		return
	}

	outcome := c.processor.Process(ctx, in.Record(), in.Type, score)
	dec.ack = outcome.Succeeded()
	dec.reason = outcome.Reason
	dec.err = outcome.Err
	if outcome.Transient() {
		// Store outages never drop a message, whatever the failure policy says.
		dec.transient = true
		dec.requeue = true
	}
}

// score returns the score to apply, or nil when the operation does not use
// one. Delete and unknown operations skip the scorer.
func (c *Consumer) score(ctx context.Context, log *zap.Logger, in models.InboundEvent) (*float64, error) {
	op, err := models.ParseOperationType(in.Type)
	if err != nil || op == models.OperationDelete {
		return nil, nil
	}

	res, err := c.scorer.Score(ctx)
	if err != nil {
		if c.cfg.ScoringFailurePolicy != config.ScoringFailureFallback {
			return nil, fmt.Errorf("score message: %w", err)
		}
		fallback := 0.0
		if in.Score != nil {
			fallback = *in.Score
		}
		log.Warn("Scoring failed, using fallback score",
			zap.String("message_id", in.ID),
			zap.Float64("score", fallback),
			zap.Error(err),
		)
		return &fallback, nil
	}

	value := scoring.Clamp(res.Score)
	c.metrics.ObserveScoring(res.Elapsed.Seconds())
	log.Debug("Message scored",
		zap.String("message_id", in.ID),
		zap.Float64("score", value),
		zap.Duration("elapsed", res.Elapsed),
	)
	return &value, nil
}

// settle acks or nacks d. Failures are logged and counted; the channel may
// already be gone, in which case the broker redelivers.
func (c *Consumer) settle(d amqp.Delivery, ack, requeue bool) {
	if ack {
		if err := d.Ack(false); err != nil {
			c.metrics.AckFailed("ack")
			c.logger.Error("Failed to ack message from queue",
				zap.Uint64("delivery_tag", d.DeliveryTag),
				zap.Error(err),
			)
		}
		return
	}
	if err := d.Nack(false, requeue); err != nil {
		c.metrics.AckFailed("nack")
		c.logger.Error("Failed to nack a message",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
	}
}

// metricOperation bounds the operation label to known values.
func metricOperation(op string) string {
	parsed, err := models.ParseOperationType(op)
	if err != nil {
		return models.UnknownType
	}
	return string(parsed)
}
