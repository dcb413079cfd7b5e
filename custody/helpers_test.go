package custody

import (
	"context"
	"testing"

	"github.com/infrahq/custody/api"
	"github.com/infrahq/custody/custody/custodytest"
	"github.com/infrahq/custody/internal/logging"
)

const testAPIKey = "test-api-key"

func setupCustodian(t *testing.T) (*custodytest.Custodian, *Connector) {
	t.Helper()
	logging.PatchLogger(t, nil)

	custodian := custodytest.New(t, testAPIKey)
	conn := NewConnector(ConnectorOptions{URL: custodian.URL(), APIKey: testAPIKey})
	return custodian, conn
}

// stubTransport answers with fixed objects and records what it was asked.
type stubTransport struct {
	create  func(kind api.Kind, payload interface{}) (*api.Object, error)
	fetch   func(kind api.Kind, id string, force bool) (*api.Object, error)
	creates int
	fetches int
}

func (s *stubTransport) Create(_ context.Context, kind api.Kind, payload interface{}) (*api.Object, error) {
	s.creates++
	return s.create(kind, payload)
}

func (s *stubTransport) Fetch(_ context.Context, kind api.Kind, id string, force bool) (*api.Object, error) {
	s.fetches++
	return s.fetch(kind, id, force)
}
