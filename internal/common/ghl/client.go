// Package ghl is the HTTP client for the GoHighLevel contacts API.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "loan-pool-sync/internal/common/http"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"
)

const (
	DefaultBaseURL = "https://rest.gohighlevel.com/"
	DefaultTimeout = 30 * time.Second

	opLookup = "lookup"
	opCreate = "create"
	opUpdate = "update"
)

var validStatusCodes = map[int]bool{
	http.StatusOK:      true,
	http.StatusCreated: true,
}

// Client talks to the v1 contacts endpoints with a static bearer token.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *commonhttp.Client
	logger     logger.Logger
}

type Options struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Logger   logger.Logger

	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	var hc *commonhttp.Client
	if opts.HTTPClient != nil {
		hc = commonhttp.NewWithHTTPClient(opts.HTTPClient)
	} else {
		hc = commonhttp.NewClient(timeout)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   opts.APIToken,
		httpClient: hc,
		logger:     log.WithFields(map[string]interface{}{"component": "ghl-client"}),
	}
}

// LookupByEmail returns every contact the CRM associates with email, in API
// order. No match yields an empty slice.
func (c *Client) LookupByEmail(ctx context.Context, email string) ([]Contact, error) {
	endpoint := fmt.Sprintf("%s/v1/contacts/lookup?email=%s", c.baseURL, url.QueryEscape(email))

	body, err := c.request(ctx, opLookup, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Contacts []json.RawMessage `json:"contacts"`
	}
	if err := decode(body, &envelope); err != nil {
		return nil, &RejectedError{Op: opLookup, StatusCode: http.StatusOK, Body: string(body)}
	}

	contacts := make([]Contact, 0, len(envelope.Contacts))
	for _, raw := range envelope.Contacts {
		contact, err := decodeContact(raw)
		if err != nil {
			return nil, &RejectedError{Op: opLookup, StatusCode: http.StatusOK, Body: string(body)}
		}
		contacts = append(contacts, *contact)
	}
	return contacts, nil
}

// CreateContact creates a contact and returns it as the CRM stored it.
func (c *Client) CreateContact(ctx context.Context, fields CreateFields) (*Contact, error) {
	endpoint := c.baseURL + "/v1/contacts/"

	body, err := c.request(ctx, opCreate, http.MethodPost, endpoint, fields)
	if err != nil {
		return nil, err
	}
	return contactFromEnvelope(opCreate, body)
}

// UpdateContact sends only the non-zero fields of fields.
func (c *Client) UpdateContact(ctx context.Context, contactID string, fields UpdateFields) (*Contact, error) {
	endpoint := fmt.Sprintf("%s/v1/contacts/%s", c.baseURL, url.PathEscape(contactID))

	body, err := c.request(ctx, opUpdate, http.MethodPut, endpoint, fields)
	if err != nil {
		return nil, err
	}
	return contactFromEnvelope(opUpdate, body)
}

func (c *Client) request(ctx context.Context, op, method, endpoint string, payload interface{}) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.CRMRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiToken,
	}

	resp, err := c.httpClient.DoJSON(ctx, method, endpoint, headers, payload)
	if err != nil {
		metrics.CRMRequests.WithLabelValues(op, "transient").Inc()
		c.logger.Error("CRM request failed", map[string]interface{}{
			"operation": op,
			"endpoint":  endpoint,
			"error":     err.Error(),
		})
		return nil, &TransientError{Op: op, Err: err}
	}

	if !validStatusCodes[resp.StatusCode] {
		metrics.CRMRequests.WithLabelValues(op, "rejected").Inc()
		c.logger.Error("CRM returned invalid response code", map[string]interface{}{
			"operation":  op,
			"endpoint":   endpoint,
			"statusCode": resp.StatusCode,
			"body":       string(resp.Body),
		})
		return nil, &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	metrics.CRMRequests.WithLabelValues(op, "ok").Inc()
	c.logger.Debug("CRM request succeeded", map[string]interface{}{
		"operation":  op,
		"endpoint":   endpoint,
		"statusCode": resp.StatusCode,
	})
	return resp.Body, nil
}

func contactFromEnvelope(op string, body []byte) (*Contact, error) {
	var envelope struct {
		Contact json.RawMessage `json:"contact"`
	}
	if err := decode(body, &envelope); err != nil || len(envelope.Contact) == 0 || string(envelope.Contact) == "null" {
		return nil, &RejectedError{Op: op, StatusCode: http.StatusOK, Body: string(body)}
	}

	contact, err := decodeContact(envelope.Contact)
	if err != nil {
		return nil, &RejectedError{Op: op, StatusCode: http.StatusOK, Body: string(body)}
	}
	return contact, nil
}

func decodeContact(raw json.RawMessage) (*Contact, error) {
	var contact Contact
	if err := decode(raw, &contact); err != nil {
		return nil, err
	}
	contact.Raw = append(json.RawMessage(nil), raw...)
	return &contact, nil
}

// decode keeps numeric custom field values as their literal text.
func decode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
