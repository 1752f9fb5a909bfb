package ups

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// TokenProvider hands out bearer tokens for outbound calls.
// *oauth.TokenCache implements it.
type TokenProvider interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// HTTPAPIClient is the production implementation of APIClient using the UPS REST API.
type HTTPAPIClient struct {
	baseURL        string
	version        string
	transactionSrc string
	tokens         TokenProvider
	httpClient     *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL        string // e.g. https://wwwcie.ups.com
	Version        string // API version path segment, default "v1"
	TransactionSrc string // transactionSrc header, identifies the calling application
	Timeout        time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig, tokens TokenProvider) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	version := cfg.Version
	if version == "" {
		version = "v1"
	}

	transactionSrc := cfg.TransactionSrc
	if transactionSrc == "" {
		transactionSrc = "upsbridge"
	}

	return &HTTPAPIClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		version:        version,
		transactionSrc: transactionSrc,
		tokens:         tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateShipment books a shipment.
// POST /api/shipments/{version}/ship?additionaladdressvalidation=false
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequestEnvelope) (*ShipmentResponseEnvelope, error) {
	query := url.Values{}
	query.Set("additionaladdressvalidation", "false")
	path := fmt.Sprintf("/api/shipments/%s/ship?%s", c.version, query.Encode())

	var result ShipmentResponseEnvelope
	if err := c.call(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	if !result.ShipmentResponse.Response.Succeeded() {
		return nil, statusError(result.ShipmentResponse.Response)
	}
	return &result, nil
}

// Rate shops all services for a shipment.
// POST /api/rating/{version}/Shop
func (c *HTTPAPIClient) Rate(ctx context.Context, req *RateRequestEnvelope) (*RateResponseEnvelope, error) {
	path := fmt.Sprintf("/api/rating/%s/Shop", c.version)

	var result RateResponseEnvelope
	if err := c.call(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	if !result.RateResponse.Response.Succeeded() {
		return nil, statusError(result.RateResponse.Response)
	}
	return &result, nil
}

// VoidShipment cancels a shipment.
// DELETE /api/shipments/{version}/void/cancel/{shipmentidentificationnumber}
func (c *HTTPAPIClient) VoidShipment(ctx context.Context, shipmentID string) (*VoidResponseEnvelope, error) {
	path := fmt.Sprintf("/api/shipments/%s/void/cancel/%s", c.version, url.PathEscape(shipmentID))

	var result VoidResponseEnvelope
	if err := c.call(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecoverLabel fetches the label of an existing package.
// POST /api/labels/{version}/recovery
func (c *HTTPAPIClient) RecoverLabel(ctx context.Context, req *LabelRecoveryRequestEnvelope) (*LabelRecoveryResponseEnvelope, error) {
	path := fmt.Sprintf("/api/labels/%s/recovery", c.version)

	var result LabelRecoveryResponseEnvelope
	if err := c.call(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	if len(result.LabelRecoveryResponse.LabelResults) == 0 {
		return nil, &APIError{Code: "NO_LABEL", Message: "label recovery returned no labels"}
	}
	return &result, nil
}

// call performs a request and decodes a 2xx JSON body into out.
func (c *HTTPAPIClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokens.TokenSource(ctx).Token()
	if err != nil {
		return nil, &authError{cause: err}
	}
	token.SetAuthHeader(req)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("transId", strings.ReplaceAll(uuid.New().String(), "-", ""))
	req.Header.Set("transactionSrc", c.transactionSrc)

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Response.Errors) > 0 {
		first := eb.Response.Errors[0]
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       first.Code,
			Message:    first.Message,
			Errors:     eb.Response.Errors,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
	}
}

func statusError(r Response) error {
	msg := r.ResponseStatus.Description
	if len(r.Alert) > 0 {
		msg = r.Alert[0].Description
	}
	return &APIError{
		Code:    "STATUS_" + r.ResponseStatus.Code,
		Message: msg,
	}
}

// authError means no bearer token could be obtained for the call.
type authError struct {
	cause error
}

func (e *authError) Error() string { return "obtaining access token: " + e.cause.Error() }
func (e *authError) Unwrap() error { return e.cause }

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
