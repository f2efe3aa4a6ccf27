package event

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Classification
		wantErr  bool
	}{
		{
			name:     "success response",
			raw:      `{"result":null,"id":1}`,
			expected: Classification{Kind: KindResponse},
		},
		{
			name:     "error response",
			raw:      `{"error":{"code":2,"msg":"Invalid request"},"id":7}`,
			expected: Classification{Kind: KindResponse},
		},
		{
			name:     "list response",
			raw:      `{"result":["ethusdt@trade"],"id":3}`,
			expected: Classification{Kind: KindResponse},
		},
		{
			name:     "trade event",
			raw:      `{"e":"trade","E":1700000000000,"s":"ETHUSDT","t":42,"p":"2000.10","q":"0.5","T":1700000000001,"m":true}`,
			expected: Classification{Kind: KindDomain, Type: "trade"},
		},
		{
			name:     "no id no discriminator",
			raw:      `{"stream":"ethusdt@trade","data":{}}`,
			expected: Classification{Kind: KindOpaque},
		},
		{
			name:     "malformed",
			raw:      `{not json`,
			expected: Classification{Kind: KindOpaque},
			wantErr:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Classify([]byte(test.raw))
			if test.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestDecodeTrade(t *testing.T) {
	raw := `{"e":"trade","E":1700000000000,"s":"ETHUSDT","t":42,"p":"2000.10","q":"0.5","T":1700000000001,"m":true}`

	decoded, err := Decode(TypeTrade, []byte(raw))
	require.NoError(t, err)

	trade, ok := decoded.(*TradeEvent)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", trade.Symbol)
	assert.Equal(t, int64(42), trade.TradeID)
	assert.Equal(t, "2000.10", trade.Price)
	assert.Equal(t, "0.5", trade.Quantity)
	assert.True(t, trade.IsBuyerMaker)
}

func TestDecodeAccountUpdate(t *testing.T) {
	raw := `{
		"e":"ACCOUNT_UPDATE","E":1700000000000,
		"a":{
			"m":"ORDER",
			"B":[{"a":"USDT","wb":"100.0","cw":"100.0","bc":"-1.5"}],
			"P":[{"s":"ETHUSDT","pa":"0.5","ep":"2000.0","up":"3.2","ps":"BOTH"}]
		}
	}`

	decoded, err := Decode(TypeAccountUpdate, []byte(raw))
	require.NoError(t, err)

	update, ok := decoded.(*AccountUpdate)
	require.True(t, ok)
	assert.Equal(t, "ORDER", update.Account.Reason)
	require.Len(t, update.Account.Balances, 1)
	assert.Equal(t, "USDT", update.Account.Balances[0].Asset)
	require.Len(t, update.Account.Positions, 1)
	assert.Equal(t, "ETHUSDT", update.Account.Positions[0].Symbol)
}

func TestDecodeUnknownType(t *testing.T) {
	decoded, err := Decode("kline", []byte(`{"e":"kline"}`))
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(TypeTrade, []byte(`{"e":"trade","t":"not a number"}`))
	require.Error(t, err)
}

type capturePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSHandlerPublishesRaw(t *testing.T) {
	pub := &capturePublisher{}
	handler := NewNATSHandler(pub, "marketfeed.events", slog.Default())

	raw := []byte(`{"e":"trade","s":"ETHUSDT"}`)
	require.NoError(t, handler.HandleEvent("trade", raw, nil))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "marketfeed.events.trade", pub.subjects[0])
	assert.Equal(t, raw, pub.payloads[0])
}

func TestNATSHandlerSwallowsPublishError(t *testing.T) {
	pub := &capturePublisher{err: assert.AnError}
	handler := NewNATSHandler(pub, "marketfeed.events", slog.Default())

	assert.NoError(t, handler.HandleEvent("trade", []byte(`{}`), nil))
}

func TestLogHandlerAcceptsAllShapes(t *testing.T) {
	handler := NewLogHandler(slog.Default())

	assert.NoError(t, handler.HandleEvent("trade", nil, &TradeEvent{Symbol: "ETHUSDT"}))
	assert.NoError(t, handler.HandleEvent("aggTrade", nil, &AggTradeEvent{Symbol: "BTCUSDT"}))
	assert.NoError(t, handler.HandleEvent("ORDER_TRADE_UPDATE", nil, &OrderTradeUpdate{}))
	assert.NoError(t, handler.HandleEvent("TRADE_LITE", nil, &TradeLite{}))
	assert.NoError(t, handler.HandleEvent("ACCOUNT_UPDATE", nil, &AccountUpdate{}))
	assert.NoError(t, handler.HandleEvent("kline", []byte(`{}`), nil))
}
