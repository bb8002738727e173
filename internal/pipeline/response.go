// Package pipeline wires the reconciliation components into the runs that
// the scheduler and the webhooks trigger.
package pipeline

import (
	"net/http"

	"github.com/odyssey-erp/fieldsync/internal/field"
)

// Body is the response payload.
type Body struct {
	Message string `json:"message"`
}

// Response is the uniform result of every pipeline run.
type Response struct {
	StatusCode int  `json:"statusCode"`
	Body       Body `json:"body"`
}

// OK is a success or no-op response.
func OK(message string) Response {
	return Response{StatusCode: http.StatusOK, Body: Body{Message: message}}
}

// Failure embeds err's text in a 500 response.
func Failure(err error) Response {
	return Response{StatusCode: http.StatusInternalServerError, Body: Body{Message: err.Error()}}
}

// Trigger identifies the order an inbound event refers to. The zero Trigger
// is a scheduled poll.
type Trigger struct {
	OrderID   string
	OrderType field.RelatedType
}

// Poll reports whether t is a scheduled poll.
func (t Trigger) Poll() bool {
	return t.OrderID == ""
}
