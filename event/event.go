// Package event classifies inbound stream frames and decodes the
// typed domain events the feed understands. Frames carrying an "id"
// are request responses and belong to the reconciler; frames carrying
// an "e" discriminator are domain events; anything else is opaque and
// forwarded as-is.
package event

import (
	"encoding/json"

	"github.com/c360/marketfeed/errors"
)

// Kind classifies an inbound text frame
type Kind int

const (
	// KindResponse is a reply to a control request (has an "id" field)
	KindResponse Kind = iota
	// KindDomain is a typed domain event (has an "e" discriminator)
	KindDomain
	// KindOpaque is any other payload, forwarded without decoding
	KindOpaque
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindDomain:
		return "domain"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Event type discriminators carried in the "e" field
const (
	TypeTrade            = "trade"
	TypeAggTrade         = "aggTrade"
	TypeOrderTradeUpdate = "ORDER_TRADE_UPDATE"
	TypeTradeLite        = "TRADE_LITE"
	TypeAccountUpdate    = "ACCOUNT_UPDATE"
	TypeListenKeyExpired = "listenKeyExpired"
)

// envelope peeks at the discriminating fields without decoding the body
type envelope struct {
	ID   *json.RawMessage `json:"id"`
	Type string           `json:"e"`
}

// Classification describes one inbound frame
type Classification struct {
	Kind Kind
	// Type is the "e" discriminator; set only for KindDomain
	Type string
}

// Classify inspects a raw frame and decides how it should be routed.
// Malformed JSON is an error; the caller counts it and moves on.
func Classify(raw []byte) (Classification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Classification{Kind: KindOpaque},
			errors.WrapInvalid(err, "event", "Classify", "parse frame envelope")
	}
	if env.ID != nil {
		return Classification{Kind: KindResponse}, nil
	}
	if env.Type != "" {
		return Classification{Kind: KindDomain, Type: env.Type}, nil
	}
	return Classification{Kind: KindOpaque}, nil
}
