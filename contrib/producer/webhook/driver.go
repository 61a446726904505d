// Package webhook implements contracts.Producer over an HTTP endpoint,
// for routing keys that map to an external HTTP sink rather than a
// broker topic. Authentication follows OAuth2 client-credentials,
// grounded in contrib/auth/oauth2's provider-driven token handling but
// using clientcredentials.Config instead of the three-legged authcode
// flow since there is no end user involved in a server-to-server
// webhook delivery.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// Config configures a Driver.
type Config struct {
	// Name identifies this producer in logs and the ProducerRegistry.
	Name string

	// URL is the endpoint messages are POSTed to.
	URL string

	// TokenURL/ClientID/ClientSecret/Scopes configure the OAuth2
	// client-credentials grant used to authorize each request. Leave
	// TokenURL empty to send unauthenticated requests.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	Timeout time.Duration
}

// DefaultConfig returns a Config with a 10s timeout and no auth.
func DefaultConfig() *Config {
	return &Config{Timeout: 10 * time.Second}
}

// Driver implements contracts.Producer over an HTTP client, optionally
// authorized via OAuth2 client-credentials.
type Driver struct {
	cfg    *Config
	client *http.Client
}

// NewDriver builds a Driver from cfg, wiring the OAuth2 token source
// into the HTTP client's transport when TokenURL is set.
func NewDriver(cfg *Config) *Driver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.TokenURL != "" {
		ccCfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = ccCfg.Client(context.Background())
		client.Timeout = cfg.Timeout
	}

	return &Driver{cfg: cfg, client: client}
}

// Send POSTs msg's body to the configured URL, with the message's
// routing metadata carried as headers.
func (d *Driver) Send(ctx context.Context, msg *message.Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("webhook producer %s: build request: %w", d.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-Id", msg.Header.MessageID)
	req.Header.Set("X-Request-Type", msg.Header.RequestType)
	req.Header.Set("X-Correlation-Id", msg.Header.CorrelationID)

	resp, err := d.client.Do(req)
	if err != nil {
		return rterrors.NewChannelFailure(fmt.Errorf("webhook producer %s: %w", d.cfg.Name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return rterrors.NewChannelFailure(fmt.Errorf("webhook producer %s: server error status %d", d.cfg.Name, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook producer %s: client error status %d", d.cfg.Name, resp.StatusCode)
	}
	return nil
}

// Name returns the producer's configured name.
func (d *Driver) Name() string { return d.cfg.Name }

var _ contracts.Producer = (*Driver)(nil)
