package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSender records outbound frames for inspection
type captureSender struct {
	frames [][]byte
	err    error
}

func (s *captureSender) SendText(data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSender) requests(t *testing.T) []Request {
	t.Helper()
	reqs := make([]Request, 0, len(s.frames))
	for _, raw := range s.frames {
		var req Request
		require.NoError(t, json.Unmarshal(raw, &req))
		reqs = append(reqs, req)
	}
	return reqs
}

func newTestReconciler(t *testing.T, topics ...string) (*Reconciler, *captureSender) {
	t.Helper()
	rec := NewReconciler(topics, slog.Default())
	sender := &captureSender{}
	rec.Bind(sender)
	return rec, sender
}

func respondOK(t *testing.T, rec *Reconciler, id int64) {
	t.Helper()
	require.NoError(t, rec.HandleResponse([]byte(fmt.Sprintf(`{"result":null,"id":%d}`, id))))
}

func respondError(t *testing.T, rec *Reconciler, id int64) {
	t.Helper()
	require.NoError(t, rec.HandleResponse(
		[]byte(fmt.Sprintf(`{"error":{"code":-1,"msg":"x"},"id":%d}`, id))))
}

// assertSubset fails if any active topic is not also desired
func assertSubset(t *testing.T, rec *Reconciler) {
	t.Helper()
	desired := map[string]bool{}
	for _, topic := range rec.Desired() {
		desired[topic] = true
	}
	for _, topic := range rec.Active() {
		assert.True(t, desired[topic], "active topic %q not in desired set", topic)
	}
}

func TestInitialSubscribeOnConnect(t *testing.T) {
	rec, sender := newTestReconciler(t, "ethusdt@trade")
	rec.ResetSession()
	require.NoError(t, rec.ResyncAll())

	reqs := sender.requests(t)
	require.Len(t, reqs, 1)
	assert.Equal(t, MethodSubscribe, reqs[0].Method)
	assert.Equal(t, []string{"ethusdt@trade"}, reqs[0].Params)
	assert.Equal(t, int64(1), reqs[0].ID)

	respondOK(t, rec, 1)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())
	assertSubset(t, rec)
}

func TestSubscribeAddsTopic(t *testing.T) {
	rec, sender := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())

	require.NoError(t, rec.Subscribe("btcusdt@trade"))

	assert.Equal(t, []string{"btcusdt@trade", "ethusdt@trade"}, rec.Desired())
	reqs := sender.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, MethodSubscribe, reqs[1].Method)
	assert.Equal(t, []string{"btcusdt@trade"}, reqs[1].Params)
	assert.Equal(t, int64(2), reqs[1].ID)
}

func TestSubscribeIdempotent(t *testing.T) {
	rec, sender := newTestReconciler(t)

	require.NoError(t, rec.Subscribe("ethusdt@trade"))
	require.NoError(t, rec.Subscribe("ethusdt@trade"))
	require.NoError(t, rec.Subscribe("ETHUSDT@TRADE"))
	require.NoError(t, rec.Subscribe("  ethusdt@trade  "))

	assert.Len(t, sender.frames, 1, "duplicate subscribes must not produce outbound requests")
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired())
}

func TestSubscribeRejectionRollsBackDesired(t *testing.T) {
	rec, _ := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)

	require.NoError(t, rec.Subscribe("btcusdt@trade"))
	respondError(t, rec, 2)

	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired(), "rejected topic must leave desired")
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active(), "active unchanged by rejection")
	assertSubset(t, rec)
}

func TestUnsubscribeRejectionRestoresDesired(t *testing.T) {
	rec, _ := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)

	require.NoError(t, rec.Unsubscribe("ethusdt@trade"))
	assert.Empty(t, rec.Desired(), "optimistic removal")

	respondError(t, rec, 2)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired(), "rejection restores desired")
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active(), "active unchanged")
}

func TestUnsubscribeSuccessRemovesActive(t *testing.T) {
	rec, sender := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)
	require.Equal(t, []string{"ethusdt@trade"}, rec.Active())

	require.NoError(t, rec.Unsubscribe("ethusdt@trade"))

	reqs := sender.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, MethodUnsubscribe, reqs[1].Method)
	assert.Equal(t, []string{"ethusdt@trade"}, reqs[1].Params)

	respondOK(t, rec, 2)
	assert.Empty(t, rec.Active())
	assert.Empty(t, rec.Desired())
}

func TestUnsubscribeUnknownTopicIsNoOp(t *testing.T) {
	rec, sender := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.Unsubscribe("btcusdt@trade"))
	assert.Empty(t, sender.frames)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired())
}

func TestReconnectResync(t *testing.T) {
	rec, sender := newTestReconciler(t, "a@trade", "b@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)
	require.ElementsMatch(t, []string{"a@trade", "b@trade"}, rec.Active())

	// simulate disconnect and reconnect
	sender.frames = nil
	rec.ResetSession()
	assert.Empty(t, rec.Active(), "active cleared on reconnect")

	require.NoError(t, rec.ResyncAll())

	reqs := sender.requests(t)
	require.Len(t, reqs, 1, "exactly one resync subscribe")
	assert.Equal(t, MethodSubscribe, reqs[0].Method)
	assert.ElementsMatch(t, []string{"a@trade", "b@trade"}, reqs[0].Params)
	assert.Greater(t, reqs[0].ID, int64(1), "id counter continues across reconnects")

	respondOK(t, rec, reqs[0].ID)
	assert.ElementsMatch(t, []string{"a@trade", "b@trade"}, rec.Active())
	assertSubset(t, rec)
}

func TestRequestIDsStrictlyIncreasing(t *testing.T) {
	rec, sender := newTestReconciler(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Subscribe(fmt.Sprintf("sym%d@trade", i)))
	}
	require.NoError(t, rec.ListServer())

	reqs := sender.requests(t)
	require.Len(t, reqs, 11)
	seen := map[int64]bool{}
	var last int64
	for _, req := range reqs {
		assert.Greater(t, req.ID, last, "ids must strictly increase")
		assert.False(t, seen[req.ID], "id %d reused", req.ID)
		seen[req.ID] = true
		last = req.ID
	}
}

func TestListServer(t *testing.T) {
	rec, sender := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)

	require.NoError(t, rec.ListServer())

	reqs := sender.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, MethodListSubscriptions, reqs[1].Method)
	assert.Nil(t, reqs[1].Params, "params omitted for list requests")
	assert.NotContains(t, string(sender.frames[1]), "params")

	// list response alters no local state
	require.NoError(t, rec.HandleResponse(
		[]byte(fmt.Sprintf(`{"result":["ethusdt@trade"],"id":%d}`, reqs[1].ID))))
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired())
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())
}

func TestListServerErrorHasNoStateEffect(t *testing.T) {
	rec, _ := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())
	respondOK(t, rec, 1)
	require.NoError(t, rec.ListServer())

	respondError(t, rec, 2)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired())
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())
}

func TestUnknownResponseIDIgnored(t *testing.T) {
	rec, _ := newTestReconciler(t, "ethusdt@trade")
	require.NoError(t, rec.ResyncAll())

	require.NoError(t, rec.HandleResponse([]byte(`{"result":null,"id":999}`)))
	assert.Empty(t, rec.Active(), "unknown id must not mutate state")

	// the real pending response still applies afterwards
	respondOK(t, rec, 1)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())
}

func TestResponseWithoutNumericID(t *testing.T) {
	rec, _ := newTestReconciler(t)
	require.NoError(t, rec.HandleResponse([]byte(`{"result":null,"id":null}`)))
}

func TestMalformedResponse(t *testing.T) {
	rec, _ := newTestReconciler(t)
	require.Error(t, rec.HandleResponse([]byte(`{bogus`)))
}

func TestConfirmationForWithdrawnTopicIgnored(t *testing.T) {
	rec, _ := newTestReconciler(t)

	require.NoError(t, rec.Subscribe("ethusdt@trade"))   // id 1
	require.NoError(t, rec.Unsubscribe("ethusdt@trade")) // id 2

	// subscribe confirmation arrives after the unsubscribe was issued
	respondOK(t, rec, 1)
	assert.Empty(t, rec.Active(), "withdrawn topic must not become active")
	assertSubset(t, rec)

	respondOK(t, rec, 2)
	assert.Empty(t, rec.Active())
	assert.Empty(t, rec.Desired())
}

func TestOutOfOrderResponses(t *testing.T) {
	rec, _ := newTestReconciler(t)

	require.NoError(t, rec.Subscribe("a@trade")) // id 1
	require.NoError(t, rec.Subscribe("b@trade")) // id 2

	// responses arrive reversed; the pending table, not order, decides
	respondOK(t, rec, 2)
	assert.Equal(t, []string{"b@trade"}, rec.Active())
	respondOK(t, rec, 1)
	assert.ElementsMatch(t, []string{"a@trade", "b@trade"}, rec.Active())
	assertSubset(t, rec)
}

func TestSendWithoutConnection(t *testing.T) {
	rec := NewReconciler(nil, slog.Default())
	require.Error(t, rec.Subscribe("ethusdt@trade"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ethusdt@trade", Normalize("  ETHUSDT@Trade "))
	assert.Equal(t, "", Normalize("   "))
}

func TestScenarioSequence(t *testing.T) {
	// the full walk: connect, add, reject, reconnect, remove
	rec, sender := newTestReconciler(t, "ethusdt@trade")

	// scenario 1: initial subscribe and confirmation
	require.NoError(t, rec.ResyncAll())
	assert.JSONEq(t, `{"method":"SUBSCRIBE","params":["ethusdt@trade"],"id":1}`,
		string(sender.frames[0]))
	respondOK(t, rec, 1)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())

	// scenario 2: addsub btcusdt@trade
	require.NoError(t, rec.Subscribe("btcusdt@trade"))
	assert.JSONEq(t, `{"method":"SUBSCRIBE","params":["btcusdt@trade"],"id":2}`,
		string(sender.frames[1]))
	assert.ElementsMatch(t, []string{"ethusdt@trade", "btcusdt@trade"}, rec.Desired())

	// scenario 3: rejection rolls the addition back
	respondError(t, rec, 2)
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Desired())
	assert.Equal(t, []string{"ethusdt@trade"}, rec.Active())

	// scenario 4: disconnect and resync with a fresh id
	sender.frames = nil
	rec.ResetSession()
	require.NoError(t, rec.ResyncAll())
	reqs := sender.requests(t)
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"ethusdt@trade"}, reqs[0].Params)
	assert.Equal(t, int64(3), reqs[0].ID)
	respondOK(t, rec, 3)

	// scenario 5: delsub while desired and active
	require.NoError(t, rec.Unsubscribe("ethusdt@trade"))
	reqs = sender.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, MethodUnsubscribe, reqs[1].Method)
	respondOK(t, rec, reqs[1].ID)
	assert.Empty(t, rec.Active())
	assertSubset(t, rec)
}
