package combiner

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/protocol"
)

// SignerClient is one upstream signer as seen by the combiner.
type SignerClient interface {
	// URL identifies the signer in logs and warnings.
	URL() string

	// PartialSign forwards the raw request body and Authorization
	// header to the signer's partial-signature endpoint. The body is
	// passed through byte-for-byte so the client's signature over it
	// remains valid.
	PartialSign(ctx context.Context, body []byte, authHeader string) (*protocol.SignResponse, int, error)

	// Quota forwards a quota lookup.
	Quota(ctx context.Context, body []byte, authHeader string) (*protocol.QuotaResponse, int, error)
}

// HTTPSignerClient talks to a signer over HTTP with a per-request
// timeout.
type HTTPSignerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSignerClient creates a client for the signer at baseURL.
func NewHTTPSignerClient(baseURL string, timeout time.Duration) *HTTPSignerClient {
	return &HTTPSignerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPSignerClient) URL() string {
	return c.baseURL
}

func (c *HTTPSignerClient) PartialSign(ctx context.Context, body []byte, authHeader string) (*protocol.SignResponse, int, error) {
	return post[protocol.SignResponse](ctx, c, protocol.PartialSigEndpoint, body, authHeader)
}

func (c *HTTPSignerClient) Quota(ctx context.Context, body []byte, authHeader string) (*protocol.QuotaResponse, int, error) {
	return post[protocol.QuotaResponse](ctx, c, protocol.QuotaEndpoint, body, authHeader)
}

func post[T any](ctx context.Context, c *HTTPSignerClient, endpoint string, body []byte, authHeader string) (*T, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("building signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.AuthorizationHeader, authHeader)

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling %s%s: %w", c.baseURL, endpoint, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, httpResp.StatusCode, fmt.Errorf("signer %s returned %d", c.baseURL, httpResp.StatusCode)
	}

	resp, err := protocol.DecodeMessage[T](httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("decoding response from %s: %w", c.baseURL, err)
	}
	return resp, httpResp.StatusCode, nil
}
