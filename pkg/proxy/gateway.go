package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"harvest-go/pkg/logger"
)

// GatewayConfig holds the provisioning API settings. The key pair
// authenticates against the endpoint provider and never reaches logs
// unmasked.
type GatewayConfig struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// GatewayProvider drives an HTTP provisioning API that creates and
// destroys rotating routing endpoints on demand
type GatewayProvider struct {
	cfg    GatewayConfig
	client *fasthttp.Client
	log    *logger.Logger
	masked *logger.MaskedLogger
}

// NewGatewayProvider creates a provider against the provisioning API
func NewGatewayProvider(cfg GatewayConfig) *GatewayProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GatewayProvider{
		cfg: cfg,
		client: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
		log:    logger.GetLogger().Component("proxy"),
		masked: logger.NewMaskedLogger(),
	}
}

type createEndpointRequest struct {
	Region string `json:"region,omitempty"`
}

type createEndpointResponse struct {
	ID       string `json:"id"`
	ProxyURL string `json:"proxy_url"`
	Region   string `json:"region"`
}

func (p *GatewayProvider) Acquire(ctx context.Context, region string) (*Endpoint, error) {
	body, err := json.Marshal(createEndpointRequest{Region: region})
	if err != nil {
		return nil, fmt.Errorf("failed to encode endpoint request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.cfg.BaseURL + "/endpoints")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	p.setAuthHeaders(req)
	req.SetBody(body)

	if err := p.client.DoTimeout(req, resp, p.timeout(ctx)); err != nil {
		return nil, fmt.Errorf("endpoint provisioning request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK && resp.StatusCode() != fasthttp.StatusCreated {
		return nil, fmt.Errorf("endpoint provisioning returned HTTP %d", resp.StatusCode())
	}

	var created createEndpointResponse
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint response: %w", err)
	}
	if created.ID == "" || created.ProxyURL == "" {
		return nil, fmt.Errorf("endpoint provisioning returned an incomplete endpoint")
	}

	p.log.WithFields(map[string]interface{}{
		"endpoint_id": created.ID,
		"endpoint":    p.masked.MaskEndpoint(created.ProxyURL),
		"region":      created.Region,
	}).Info("Routing endpoint acquired")

	return &Endpoint{
		ID:       created.ID,
		ProxyURL: created.ProxyURL,
		Region:   created.Region,
	}, nil
}

func (p *GatewayProvider) Release(ctx context.Context, endpoint *Endpoint) error {
	if endpoint == nil || endpoint.ID == "" {
		return nil
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.cfg.BaseURL + "/endpoints/" + endpoint.ID)
	req.Header.SetMethod(fasthttp.MethodDelete)
	p.setAuthHeaders(req)

	if err := p.client.DoTimeout(req, resp, p.timeout(ctx)); err != nil {
		return fmt.Errorf("endpoint teardown request failed: %w", err)
	}
	if resp.StatusCode() >= 300 && resp.StatusCode() != fasthttp.StatusNotFound {
		return fmt.Errorf("endpoint teardown returned HTTP %d", resp.StatusCode())
	}

	p.log.WithField("endpoint_id", endpoint.ID).Info("Routing endpoint released")
	return nil
}

func (p *GatewayProvider) setAuthHeaders(req *fasthttp.Request) {
	req.Header.Set("X-Access-Key", p.cfg.AccessKey)
	req.Header.Set("X-Access-Secret", p.cfg.SecretKey)
}

// timeout honors an earlier context deadline so teardown calls made
// close to the invocation deadline still return in time
func (p *GatewayProvider) timeout(ctx context.Context) time.Duration {
	timeout := p.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until > 0 && until < timeout {
			timeout = until
		}
	}
	return timeout
}
