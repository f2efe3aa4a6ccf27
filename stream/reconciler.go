package stream

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360/marketfeed/errors"
)

// Sender writes one outbound text frame. The websocket connection
// satisfies it in production; tests use an in-memory capture.
type Sender interface {
	SendText(data []byte) error
}

type pendingKind int

const (
	pendingSubscribe pendingKind = iota
	pendingUnsubscribe
	pendingListServer
)

func (k pendingKind) String() string {
	switch k {
	case pendingSubscribe:
		return "subscribe"
	case pendingUnsubscribe:
		return "unsubscribe"
	case pendingListServer:
		return "list"
	default:
		return "unknown"
	}
}

type pendingRequest struct {
	kind   pendingKind
	topics []string
}

// Reconciler owns the subscription state machine: the desired set
// (what the operator wants), the active set (what the server has
// confirmed) and the table of in-flight requests keyed by id.
//
// Desired mutations are optimistic and rolled back when the matching
// response carries an error. Active membership is only granted by
// confirmation, and never for a topic whose desire has been withdrawn
// in the meantime, so active is a subset of desired at every step.
//
// All methods must be called from the single event-loop goroutine.
type Reconciler struct {
	sender  Sender
	nextID  int64
	desired map[string]struct{}
	active  map[string]struct{}
	pending map[int64]pendingRequest

	logger  *slog.Logger
	metrics *clientMetrics
}

// NewReconciler creates a reconciler seeded with the initial desired
// topics. Topics are normalized on the way in.
func NewReconciler(initialTopics []string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	desired := make(map[string]struct{}, len(initialTopics))
	for _, topic := range initialTopics {
		if normalized := Normalize(topic); normalized != "" {
			desired[normalized] = struct{}{}
		}
	}

	return &Reconciler{
		nextID:  1,
		desired: desired,
		active:  make(map[string]struct{}),
		pending: make(map[int64]pendingRequest),
		logger:  logger.With("component", "stream"),
	}
}

// Normalize canonicalizes a topic: trimmed, lower-cased. Equality is
// case-insensitive after normalization.
func Normalize(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Bind attaches the sender for the current connection
func (r *Reconciler) Bind(sender Sender) {
	r.sender = sender
}

// Subscribe adds a topic to the desired set and issues a subscribe
// request. Already-desired topics are a no-op: the membership check
// doubles as in-flight dedup, so two addsubs back to back produce one
// outbound request.
func (r *Reconciler) Subscribe(topic string) error {
	topic = Normalize(topic)
	if topic == "" {
		return nil
	}
	if _, exists := r.desired[topic]; exists {
		r.logger.Info("already requested", "topic", topic)
		return nil
	}

	r.desired[topic] = struct{}{}
	r.publishGauges()
	return r.sendSubscribe([]string{topic})
}

// Unsubscribe removes a topic from the desired set and issues an
// unsubscribe request. The removal is optimistic; a rejection restores
// it.
func (r *Reconciler) Unsubscribe(topic string) error {
	topic = Normalize(topic)
	if _, exists := r.desired[topic]; !exists {
		r.logger.Warn("topic not in desired set", "topic", topic)
		return nil
	}

	delete(r.desired, topic)
	r.publishGauges()
	return r.sendUnsubscribe([]string{topic})
}

// ListServer queries the server for its view of the subscriptions
func (r *Reconciler) ListServer() error {
	id := r.nextRequestID()
	req := Request{Method: MethodListSubscriptions, ID: id}
	if err := r.send(req); err != nil {
		return err
	}
	r.pending[id] = pendingRequest{kind: pendingListServer}
	r.logger.Info("sent list request", "id", id)
	return nil
}

// Desired returns the desired topics, sorted
func (r *Reconciler) Desired() []string {
	return sortedKeys(r.desired)
}

// Active returns the confirmed topics, sorted
func (r *Reconciler) Active() []string {
	return sortedKeys(r.active)
}

// LogLocal reports the local desired and active sets
func (r *Reconciler) LogLocal() {
	r.logger.Info("local subscriptions",
		"desired", r.Desired(),
		"active", r.Active())
}

// ResetSession clears connection-scoped state after a reconnect. The
// server has no memory of the previous connection, so the active set
// and the pending table are void; desired survives. The id counter
// keeps increasing, uniqueness is all that matters.
func (r *Reconciler) ResetSession() {
	r.active = make(map[string]struct{})
	r.pending = make(map[int64]pendingRequest)
	r.publishGauges()
}

// ResyncAll issues a single subscribe request covering the entire
// desired set. Called once per connection, right after ResetSession.
func (r *Reconciler) ResyncAll() error {
	if len(r.desired) == 0 {
		return nil
	}
	return r.sendSubscribe(sortedKeys(r.desired))
}

// HandleResponse applies one id-bearing inbound frame to the pending
// table. Unknown ids are logged and ignored; they are expected after
// a reconnect invalidates in-flight requests.
func (r *Reconciler) HandleResponse(raw []byte) error {
	resp, err := ParseResponse(raw)
	if err != nil {
		return err
	}
	if resp.ID == nil {
		r.logger.Warn("response without numeric id", "payload", string(raw))
		return nil
	}
	id := *resp.ID

	pending, exists := r.pending[id]
	if !exists {
		// Expected occasionally: a reply to a request issued before a
		// reconnect invalidated the pending table.
		r.logger.Warn("response for unknown request id", "id", id)
		return nil
	}
	delete(r.pending, id)

	if resp.IsError() {
		r.rollback(id, pending, resp.Error)
		return nil
	}

	switch pending.kind {
	case pendingSubscribe:
		for _, topic := range pending.topics {
			// Confirmation only counts while the topic is still desired;
			// a delsub racing the confirmation must not resurrect it.
			if _, want := r.desired[topic]; want {
				r.active[topic] = struct{}{}
				r.logger.Info("subscription confirmed", "topic", topic, "id", id)
			} else {
				r.logger.Info("confirmation for withdrawn topic ignored", "topic", topic, "id", id)
			}
		}
	case pendingUnsubscribe:
		for _, topic := range pending.topics {
			delete(r.active, topic)
			r.logger.Info("unsubscription confirmed", "topic", topic, "id", id)
		}
	case pendingListServer:
		r.logger.Info("server subscriptions", "id", id, "topics", resp.ResultTopics())
	}

	r.publishGauges()
	return nil
}

// rollback reverts the optimistic desired-set mutation of a rejected
// request. A rejected list query has no state effect.
func (r *Reconciler) rollback(id int64, pending pendingRequest, apiErr *APIError) {
	switch pending.kind {
	case pendingSubscribe:
		for _, topic := range pending.topics {
			delete(r.desired, topic)
		}
	case pendingUnsubscribe:
		for _, topic := range pending.topics {
			r.desired[topic] = struct{}{}
		}
	case pendingListServer:
	}

	if pending.kind != pendingListServer {
		r.metrics.incRollbacks()
	}
	r.publishGauges()
	r.logger.Error("request rejected",
		"id", id,
		"kind", pending.kind.String(),
		"code", apiErr.Code,
		"msg", apiErr.Msg)
}

func (r *Reconciler) sendSubscribe(topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	id := r.nextRequestID()
	req := Request{Method: MethodSubscribe, Params: topics, ID: id}
	if err := r.send(req); err != nil {
		return err
	}
	r.pending[id] = pendingRequest{kind: pendingSubscribe, topics: topics}
	r.logger.Info("sent subscribe", "id", id, "topics", topics)
	return nil
}

func (r *Reconciler) sendUnsubscribe(topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	id := r.nextRequestID()
	req := Request{Method: MethodUnsubscribe, Params: topics, ID: id}
	if err := r.send(req); err != nil {
		return err
	}
	r.pending[id] = pendingRequest{kind: pendingUnsubscribe, topics: topics}
	r.logger.Info("sent unsubscribe", "id", id, "topics", topics)
	return nil
}

func (r *Reconciler) send(req Request) error {
	if r.sender == nil {
		return errors.ErrNoConnection
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errors.WrapInvalid(err, "stream", "send", "encode request")
	}
	if err := r.sender.SendText(data); err != nil {
		return errors.WrapTransient(err, "stream", "send", "write request frame")
	}
	r.metrics.incRequests()
	return nil
}

// nextRequestID allocates a strictly increasing request id. Never
// reset, so ids stay unique across reconnects within the process.
func (r *Reconciler) nextRequestID() int64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *Reconciler) publishGauges() {
	r.metrics.setSets(len(r.desired), len(r.active))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
