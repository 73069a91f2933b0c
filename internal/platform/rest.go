package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

const defaultRequestTimeout = 15 * time.Second

// RESTClient implements Client against the platform's HTTP API. All requests
// go through a circuit breaker so a dead platform fails fast instead of
// stacking up blocked cascades.
type RESTClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRESTClient creates a RESTClient from platform config.
func NewRESTClient(cfg types.PlatformConfig, logger *slog.Logger) *RESTClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := defaultRequestTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "platform-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("platform breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return &RESTClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		logger:  logger,
	}
}

// GetState returns the current state of an entity.
func (c *RESTClient) GetState(ctx context.Context, entityID string) (*StateSample, error) {
	var sample StateSample
	path := "/api/states/" + url.PathEscape(entityID)
	if err := c.getJSON(ctx, path, &sample); err != nil {
		return nil, fmt.Errorf("getting state for %s: %w", entityID, err)
	}
	return &sample, nil
}

// GetHistory returns entity state samples in [start, end], oldest first.
func (c *RESTClient) GetHistory(ctx context.Context, entityID string, start, end time.Time) ([]StateSample, error) {
	q := url.Values{}
	q.Set("filter_entity_id", entityID)
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	path := "/api/history/period/" + url.PathEscape(start.UTC().Format(time.RFC3339)) + "?" + q.Encode()

	var samples []StateSample
	if err := c.getJSON(ctx, path, &samples); err != nil {
		return nil, fmt.Errorf("getting history for %s: %w", entityID, err)
	}
	return samples, nil
}

// CallService invokes a platform service against a target entity.
func (c *RESTClient) CallService(ctx context.Context, domain, service, entityID string, data map[string]interface{}) error {
	payload := map[string]interface{}{}
	for k, v := range data {
		payload[k] = v
	}
	if entityID != "" {
		payload["entity_id"] = entityID
	}
	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	if err := c.postJSON(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("calling %s.%s on %s: %w", domain, service, entityID, err)
	}
	return nil
}

// ReloadIntegration reloads an integration's configuration entry.
func (c *RESTClient) ReloadIntegration(ctx context.Context, entryID string) error {
	path := "/api/config/config_entries/entry/" + url.PathEscape(entryID) + "/reload"
	if err := c.postJSON(ctx, path, map[string]interface{}{}, nil); err != nil {
		return fmt.Errorf("reloading config entry %s: %w", entryID, err)
	}
	return nil
}

// ReconnectDevice asks the owning integration to re-establish the device link.
func (c *RESTClient) ReconnectDevice(ctx context.Context, deviceID string) error {
	path := "/api/registry/devices/" + url.PathEscape(deviceID) + "/reconnect"
	if err := c.postJSON(ctx, path, map[string]interface{}{}, nil); err != nil {
		return fmt.Errorf("reconnecting device %s: %w", deviceID, err)
	}
	return nil
}

// RebootDevice power-cycles a device.
func (c *RESTClient) RebootDevice(ctx context.Context, deviceID string) error {
	path := "/api/registry/devices/" + url.PathEscape(deviceID) + "/reboot"
	if err := c.postJSON(ctx, path, map[string]interface{}{}, nil); err != nil {
		return fmt.Errorf("rebooting device %s: %w", deviceID, err)
	}
	return nil
}

// DeviceForEntity resolves the owning device of an entity. Entities without a
// device resolve to an empty id.
func (c *RESTClient) DeviceForEntity(ctx context.Context, entityID string) (string, error) {
	var resp struct {
		DeviceID string `json:"deviceId"`
	}
	path := "/api/registry/entities/" + url.PathEscape(entityID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("resolving device for %s: %w", entityID, err)
	}
	return resp.DeviceID, nil
}

// GetDevice returns the registry entry for a device.
func (c *RESTClient) GetDevice(ctx context.Context, deviceID string) (*DeviceEntry, error) {
	var entry DeviceEntry
	path := "/api/registry/devices/" + url.PathEscape(deviceID)
	if err := c.getJSON(ctx, path, &entry); err != nil {
		return nil, fmt.Errorf("getting device %s: %w", deviceID, err)
	}
	return &entry, nil
}

func (c *RESTClient) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *RESTClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("platform returned status %d: %s", resp.StatusCode, truncate(data, 200))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding platform response: %w", err)
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
