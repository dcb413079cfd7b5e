package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/infrahq/custody/api"
)

type ServiceProviderState int

const (
	ServiceProviderCreated ServiceProviderState = iota
	ServiceProviderActivated
	ServiceProviderDeactivated
)

func (s ServiceProviderState) String() string {
	switch s {
	case ServiceProviderCreated:
		return "created"
	case ServiceProviderActivated:
		return "activated"
	case ServiceProviderDeactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("ServiceProviderState(%d)", int(s))
	}
}

// ServiceProvider is the account that owns assets and the API key used to
// reach them.
type ServiceProvider struct {
	connector *Connector

	mu  sync.Mutex
	obj api.Object
}

type ServiceProviderOptions struct {
	// Name and URL are shown in the app.
	Name string
	URL  string
	// CallbackURL receives callbacks for requests made with the API key.
	CallbackURL string
	// Template is api.DefaultServiceProviderTemplate when empty.
	Template string
}

// NewServiceProvider returns the service provider with id. Its details are
// read with Fetch.
func NewServiceProvider(c *Connector, id string) *ServiceProvider {
	return &ServiceProvider{connector: c, obj: api.Object{Kind: api.KindServiceProvider, UUID: id}}
}

// CreateServiceProvider registers a new service provider. The API key in the
// response replaces the key of the connector, so that c can be used for the
// new service provider right away.
func CreateServiceProvider(ctx context.Context, c *Connector, opts ServiceProviderOptions) (*ServiceProvider, error) {
	if opts.Template == "" {
		opts.Template = api.DefaultServiceProviderTemplate
	}

	// a new service provider is created without a key
	c.SetAPIKey("")

	obj, err := c.Create(ctx, api.KindServiceProvider, &api.CreateServiceProviderRequest{
		Name:         opts.Name,
		Template:     opts.Template,
		URL:          opts.URL,
		CallbackURL:  opts.CallbackURL,
		ChallengeURL: opts.URL,
	})
	if err != nil {
		return nil, err
	}

	sp := &ServiceProvider{connector: c}
	sp.read(obj)
	return sp, nil
}

func (s *ServiceProvider) read(obj *api.Object) {
	s.mu.Lock()
	s.obj = *obj
	s.mu.Unlock()

	if obj.APIKey != "" {
		s.connector.SetAPIKey(obj.APIKey)
	}
}

func (s *ServiceProvider) Fetch(ctx context.Context, force bool) error {
	obj, err := s.connector.Fetch(ctx, api.KindServiceProvider, s.ID(), force)
	if err != nil {
		return err
	}

	s.read(obj)
	return nil
}

func (s *ServiceProvider) object() api.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obj
}

func (s *ServiceProvider) ID() string {
	return s.object().UUID
}

func (s *ServiceProvider) Name() string {
	return s.object().Name
}

func (s *ServiceProvider) State() ServiceProviderState {
	return ServiceProviderState(s.object().StatusCode)
}

// Nonce is used to finalize the creation of the service provider in the app.
func (s *ServiceProvider) Nonce() string {
	return s.object().Nonce
}

func (s *ServiceProvider) NonceFormatted() string {
	return s.object().NonceFormatted
}

// DomainChallenge is the response to serve at DomainChallengeURL when the
// template requires a validated domain.
func (s *ServiceProvider) DomainChallenge() string {
	return s.object().DomainChallenge
}

func (s *ServiceProvider) DomainChallengeURL() string {
	return s.object().DomainChallengeURL
}

func (s *ServiceProvider) DomainValidated() bool {
	return s.object().DomainValidated
}

func (s *ServiceProvider) CallbackURL() string {
	return s.object().CallbackURL
}

func (s *ServiceProvider) NotificationURL() string {
	return s.object().NotificationURL
}

func (s *ServiceProvider) AssetCount() int {
	return s.object().AssetCount
}

// APIKey is only returned by the API when the service provider is created.
func (s *ServiceProvider) APIKey() string {
	return s.object().APIKey
}

// ValidateDomain asks the API to validate the domain. A validated domain is
// not validated again unless force is set.
func (s *ServiceProvider) ValidateDomain(ctx context.Context, force bool) (bool, error) {
	if s.DomainValidated() && !force {
		return true, nil
	}

	return s.connector.ValidateDomain(ctx)
}

// CreateIdentification starts the registration of a new asset.
func (s *ServiceProvider) CreateIdentification(ctx context.Context) (*Identification, error) {
	obj, err := s.connector.Create(ctx, api.KindIdentification, nil)
	if err != nil {
		return nil, err
	}

	return &Identification{transport: s.connector, obj: *obj}, nil
}

// Asset returns the asset with id. It is not fetched.
func (s *ServiceProvider) Asset(id string) *Asset {
	return NewAsset(s.connector, id)
}

// AdminAsset returns the asset that manages the service provider.
func (s *ServiceProvider) AdminAsset() *Asset {
	return NewAsset(s.connector, s.object().AssetUUID)
}
