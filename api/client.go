package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultURL is the custodian API used when no other URL is configured.
	DefaultURL = "https://free.ubiqu.com/api"
	MediaType  = "application/vnd.free.v1+json"
)

type Client struct {
	URL    string
	APIKey string
	HTTP   http.Client
	// Headers are added to every request.
	Headers http.Header
	// ObserveResponse is called with the status of every response received,
	// before it is checked for errors.
	ObserveResponse func(method, path string, status int)
}

// envelope is the body of every API response.
type envelope struct {
	Result json.RawMessage   `json:"result"`
	Errors []json.RawMessage `json:"errors"`
}

func (c Client) url(path string) string {
	base := c.URL
	if base == "" {
		base = DefaultURL
	}
	return strings.TrimRight(base, "/") + path
}

func checkError(method, path string, status int, env envelope, body []byte) error {
	if len(env.Errors) > 0 {
		details := make([]string, 0, len(env.Errors))
		for _, raw := range env.Errors {
			var msg string
			if err := json.Unmarshal(raw, &msg); err != nil {
				msg = string(raw)
			}
			details = append(details, msg)
		}

		return Error{
			Method:  method,
			Path:    path,
			Code:    int32(status),
			Message: "api returned error(s): " + strings.Join(details, "; "),
			Details: details,
		}
	}

	if status >= 400 {
		return Error{
			Method:  method,
			Path:    path,
			Code:    int32(status),
			Message: partialText(body, 100),
		}
	}

	return nil
}

func request[Req any](ctx context.Context, client Client, method string, path string, req *Req) (json.RawMessage, error) {
	var reqBody io.Reader
	if req != nil {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, client.url(path), reqBody)
	if err != nil {
		return nil, err
	}

	for k, v := range client.Headers {
		httpReq.Header[k] = v
	}

	httpReq.Header.Set("Accept", MediaType)
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if client.APIKey != "" {
		httpReq.Header.Set("X-Api-Key", client.APIKey)
	}

	resp, err := client.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if client.ObserveResponse != nil {
		client.ObserveResponse(method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, checkError(method, path, resp.StatusCode, envelope{}, body)
		}
		return nil, &DecodeError{
			Reason: fmt.Sprintf("parsing json response, partial text: %q", partialText(body, 100)),
			Err:    err,
		}
	}

	if err := checkError(method, path, resp.StatusCode, env, body); err != nil {
		return nil, err
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, &DecodeError{Field: "result", Reason: "no result in response"}
	}

	return env.Result, nil
}

func get(ctx context.Context, client Client, path string) (json.RawMessage, error) {
	return request[EmptyRequest](ctx, client, http.MethodGet, path, nil)
}

func post[Req any](ctx context.Context, client Client, path string, req *Req) (json.RawMessage, error) {
	return request(ctx, client, http.MethodPost, path, req)
}

// Create posts payload to the collection of kind and returns the created
// object.
func (c Client) Create(ctx context.Context, kind Kind, payload interface{}) (*Object, error) {
	if payload == nil {
		payload = EmptyRequest{}
	}

	result, err := post(ctx, c, "/"+string(kind), &payload)
	if err != nil {
		return nil, err
	}

	return UnmarshalObject(result)
}

// Fetch reads the object of kind with id.
func (c Client) Fetch(ctx context.Context, kind Kind, id string) (*Object, error) {
	result, err := get(ctx, c, fmt.Sprintf("/%s/%s", kind, id))
	if err != nil {
		return nil, err
	}

	return UnmarshalObject(result)
}

// ValidateDomain asks the custodian to validate the domain of the service
// provider that owns the API key.
func (c Client) ValidateDomain(ctx context.Context) (bool, error) {
	result, err := post(ctx, c, "/serviceprovider/validatedomain", &EmptyRequest{})
	if err != nil {
		return false, err
	}

	var res ValidateDomainResponse
	if err := json.Unmarshal(result, &res); err != nil {
		return false, &DecodeError{Kind: KindServiceProvider, Reason: "malformed validatedomain result", Err: err}
	}

	return res.Success, nil
}

// Ping checks that the API is reachable and accepts the API key.
func (c Client) Ping(ctx context.Context) error {
	_, err := get(ctx, c, "/"+string(KindPing))
	return err
}

func partialText(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}

	return string(body[:limit]) + "..."
}
