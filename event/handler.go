package event

import (
	"log/slog"
)

// Publisher is the sink side of the NATS handler
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Handler consumes classified domain events. Raw is the original
// frame; decoded is the typed form from Decode, nil for unknown types.
type Handler interface {
	HandleEvent(eventType string, raw []byte, decoded any) error
}

// LogHandler writes domain events to structured logs. It is the
// default sink when no forwarding is configured.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger.With("component", "event")}
}

// HandleEvent logs the interesting fields of known event types and a
// compact line for everything else.
func (h *LogHandler) HandleEvent(eventType string, raw []byte, decoded any) error {
	switch evt := decoded.(type) {
	case *TradeEvent:
		h.logger.Info("trade",
			"symbol", evt.Symbol,
			"price", evt.Price,
			"qty", evt.Quantity,
			"trade_id", evt.TradeID,
			"buyer_maker", evt.IsBuyerMaker)
	case *AggTradeEvent:
		h.logger.Info("agg trade",
			"symbol", evt.Symbol,
			"price", evt.Price,
			"qty", evt.Quantity,
			"agg_id", evt.AggTradeID)
	case *OrderTradeUpdate:
		h.logger.Info("order update",
			"order_id", evt.Order.OrderID,
			"symbol", evt.Order.Symbol,
			"status", evt.Order.Status)
	case *TradeLite:
		h.logger.Info("trade lite",
			"trade_id", evt.TradeID,
			"symbol", evt.Symbol,
			"price", evt.Price,
			"qty", evt.Quantity)
	case *AccountUpdate:
		h.logger.Info("account update",
			"reason", evt.Account.Reason,
			"balances", len(evt.Account.Balances),
			"positions", len(evt.Account.Positions))
	default:
		h.logger.Debug("event", "type", eventType, "bytes", len(raw))
	}
	return nil
}

// NATSHandler forwards raw event JSON to a NATS subject. The payload
// is republished untouched so downstream consumers see exactly what
// the exchange sent.
type NATSHandler struct {
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

// NewNATSHandler creates a NATSHandler publishing to the given subject
func NewNATSHandler(publisher Publisher, subject string, logger *slog.Logger) *NATSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSHandler{
		publisher: publisher,
		subject:   subject,
		logger:    logger.With("component", "event"),
	}
}

// HandleEvent publishes the raw frame. Publish failures are logged,
// not returned: a broker hiccup must not stall the read loop.
func (h *NATSHandler) HandleEvent(eventType string, raw []byte, _ any) error {
	subject := h.subject
	if eventType != "" {
		subject = h.subject + "." + eventType
	}
	if err := h.publisher.Publish(subject, raw); err != nil {
		h.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
	return nil
}
