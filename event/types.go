package event

import (
	"encoding/json"

	"github.com/c360/marketfeed/errors"
)

// TradeEvent is a raw trade from a <symbol>@trade stream
type TradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	// IsBuyerMaker is true when the buyer was the resting order
	IsBuyerMaker bool `json:"m"`
}

// AggTradeEvent is an aggregated trade from a <symbol>@aggTrade stream
type AggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// OrderTradeUpdate is an order lifecycle event from an account stream
type OrderTradeUpdate struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Order     OrderDetail `json:"o"`
}

// OrderDetail carries the order fields of an ORDER_TRADE_UPDATE
type OrderDetail struct {
	OrderID int64  `json:"i"`
	Symbol  string `json:"s"`
	Side    string `json:"S"`
	Status  string `json:"X"`
	Price   string `json:"p"`
	Qty     string `json:"q"`
}

// TradeLite is the compact fill notification from an account stream
type TradeLite struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	TradeID      int64  `json:"i"`
	Symbol       string `json:"s"`
	Quantity     string `json:"q"`
	Price        string `json:"p"`
	IsBuyerMaker bool   `json:"m"`
}

// AccountUpdate reports balance and position changes on an account stream
type AccountUpdate struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Account   AccountInfo `json:"a"`
}

// AccountInfo is the body of an ACCOUNT_UPDATE
type AccountInfo struct {
	Reason    string     `json:"m"`
	Balances  []Balance  `json:"B"`
	Positions []Position `json:"P"`
}

// Balance is one asset balance within an ACCOUNT_UPDATE
type Balance struct {
	Asset              string `json:"a"`
	WalletBalance      string `json:"wb"`
	CrossWalletBalance string `json:"cw"`
	BalanceChange      string `json:"bc"`
}

// Position is one position within an ACCOUNT_UPDATE
type Position struct {
	Symbol              string `json:"s"`
	PositionAmount      string `json:"pa"`
	EntryPrice          string `json:"ep"`
	AccumulatedRealized string `json:"cr"`
	UnrealizedProfit    string `json:"up"`
	MarginType          string `json:"mt"`
	IsolatedWallet      string `json:"iw"`
	PositionSide        string `json:"ps"`
}

// Decode unmarshals a domain-event payload into its typed form based
// on the "e" discriminator. Unknown types return (nil, nil): the
// caller forwards them opaque.
func Decode(eventType string, raw []byte) (any, error) {
	var target any
	switch eventType {
	case TypeTrade:
		target = &TradeEvent{}
	case TypeAggTrade:
		target = &AggTradeEvent{}
	case TypeOrderTradeUpdate:
		target = &OrderTradeUpdate{}
	case TypeTradeLite:
		target = &TradeLite{}
	case TypeAccountUpdate:
		target = &AccountUpdate{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, errors.WrapInvalid(err, "event", "Decode", "decode "+eventType+" event")
	}
	return target, nil
}
