package stream

import (
	"encoding/json"

	"github.com/c360/marketfeed/errors"
)

// Control request methods
const (
	MethodSubscribe         = "SUBSCRIBE"
	MethodUnsubscribe       = "UNSUBSCRIBE"
	MethodListSubscriptions = "LIST_SUBSCRIPTIONS"
)

// Request is an outbound control message. Params is omitted for
// LIST_SUBSCRIPTIONS.
type Request struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// APIError is the error body of a rejected request
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Response is an inbound frame correlated to a Request by ID. An
// error field marks failure; otherwise Result holds the outcome (a
// string array for list queries, null for everything else).
type Response struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// ParseResponse decodes a response frame
func ParseResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.WrapInvalid(err, "stream", "ParseResponse", "decode response")
	}
	return &resp, nil
}

// IsError reports whether the response marks a rejected request
func (r *Response) IsError() bool {
	return r.Error != nil
}

// ResultTopics decodes Result as a topic list. Returns nil when the
// result is null or not an array.
func (r *Response) ResultTopics() []string {
	if len(r.Result) == 0 {
		return nil
	}
	var topics []string
	if err := json.Unmarshal(r.Result, &topics); err != nil {
		return nil
	}
	return topics
}
