package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"go.uber.org/zap"
)

// DefaultTimeout applies when no timeout is configured
const DefaultTimeout = 5 * time.Second

// HTTPClient reads master data from a REST service exposing
// GET /customers/{id}, /products/{id} and /technicians/{id}
type HTTPClient struct {
	baseURL       string
	httpClient    *http.Client
	retryAttempts int
	logger        *zap.Logger
}

var _ port.MasterData = (*HTTPClient)(nil)

// NewHTTPClient creates a master data client
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: 3,
		logger:        logger,
	}
}

// GetCustomer fetches a customer by id
func (c *HTTPClient) GetCustomer(ctx context.Context, id string) (*port.Customer, error) {
	var out port.Customer
	if err := c.get(ctx, "customers", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct fetches a product by id
func (c *HTTPClient) GetProduct(ctx context.Context, id string) (*port.Product, error) {
	var out port.Product
	if err := c.get(ctx, "products", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTechnician fetches a technician by id
func (c *HTTPClient) GetTechnician(ctx context.Context, id string) (*port.Technician, error) {
	var out port.Technician
	if err := c.get(ctx, "technicians", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) get(ctx context.Context, collection, id string, out interface{}) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", port.ErrMasterDataNotFound, collection)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, collection, url.PathEscape(id))

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		retry, err := c.fetch(ctx, endpoint, out)
		if err == nil {
			return nil
		}
		if !retry {
			return fmt.Errorf("%s %s: %w", collection, id, err)
		}
		lastErr = err
		c.logger.Warn("Master data request failed, retrying",
			zap.String("url", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", collection, id, c.retryAttempts, lastErr)
}

// fetch performs one request. The boolean reports whether the failure is transient.
func (c *HTTPClient) fetch(ctx context.Context, endpoint string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, port.ErrMasterDataNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("master data service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("master data service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}
