package api

import (
	"net/http"
	"testing"

	"github.com/dougbarrett/reactivequery/query"
)

func TestFromQueryErrorMapsKinds(t *testing.T) {
	cases := []struct {
		kind   query.ErrorKind
		status int
	}{
		{query.ErrTimeout, http.StatusGatewayTimeout},
		{query.ErrServer, http.StatusBadGateway},
		{query.ErrParsing, http.StatusBadRequest},
		{query.ErrNetwork, http.StatusServiceUnavailable},
		{query.ErrUnknown, http.StatusInternalServerError},
	}

	for _, c := range cases {
		qe := &query.QueryError{Kind: c.kind, Message: "boom"}
		got := FromQueryError(qe)
		if got.Status != c.status {
			t.Errorf("kind %v: Status = %d, want %d", c.kind, got.Status, c.status)
		}
		if got.Message == "" {
			t.Errorf("kind %v: Message is empty", c.kind)
		}
	}
}
