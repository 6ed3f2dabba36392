package engineer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Key-check failure categories. Clients use them to phrase the error; the
// key stays unset on anything but a valid result.
const (
	CategoryEmpty      = "empty"
	CategoryInvalid    = "invalid"
	CategoryPermission = "permission-denied"
	CategoryQuota      = "quota"
	CategoryNetwork    = "network"
	CategoryUnknown    = "unknown"
)

// KeyCheck is the outcome of an API-key validation probe.
type KeyCheck struct {
	Valid bool `json:"valid"`

	// Category classifies the failure. Empty when Valid.
	Category string `json:"category,omitempty"`
}

const defaultValidationURL = "https://generativelanguage.googleapis.com"

// KeyValidator probes the voice provider's model-listing endpoint, which
// authenticates the key without billing any tokens.
type KeyValidator struct {
	httpClient *http.Client
	baseURL    string
}

// KeyValidatorOption customises a KeyValidator.
type KeyValidatorOption func(*KeyValidator)

// WithValidationBaseURL overrides the provider endpoint; used by tests.
func WithValidationBaseURL(u string) KeyValidatorOption {
	return func(v *KeyValidator) {
		if u != "" {
			v.baseURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) KeyValidatorOption {
	return func(v *KeyValidator) {
		if c != nil {
			v.httpClient = c
		}
	}
}

// NewKeyValidator builds a validator against the production endpoint.
func NewKeyValidator(opts ...KeyValidatorOption) *KeyValidator {
	v := &KeyValidator{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultValidationURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check probes the models listing with the given key. Transport failures map
// to the network category; HTTP statuses map to the categories the provider
// documents for auth errors.
func (v *KeyValidator) Check(ctx context.Context, key string) KeyCheck {
	if key == "" {
		return KeyCheck{Category: CategoryEmpty}
	}

	probe := fmt.Sprintf("%s/v1beta/models?key=%s&pageSize=1",
		v.baseURL, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return KeyCheck{Category: CategoryUnknown}
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return KeyCheck{Category: CategoryNetwork}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusOK:
		return KeyCheck{Valid: true}
	case http.StatusBadRequest:
		return KeyCheck{Category: CategoryInvalid}
	case http.StatusUnauthorized, http.StatusForbidden:
		return KeyCheck{Category: CategoryPermission}
	case http.StatusTooManyRequests:
		return KeyCheck{Category: CategoryQuota}
	default:
		return KeyCheck{Category: CategoryUnknown}
	}
}
