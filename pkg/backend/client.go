package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Alcereo/edgegate/pkg/common"
)

const (
	DefaultBaseUrl = "http://localhost:8001/v1"
	maxBodyBytes   = 10 << 20
)

type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string, timeout time.Duration) (*Client, error) {
	normalized := normalizeBaseUrl(baseUrl)
	if normalized == "" {
		normalized = DefaultBaseUrl
	}
	if !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
		return nil, fmt.Errorf("backend base url must be absolute http(s): %q", baseUrl)
	}
	return &Client{
		baseUrl:    normalized,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func normalizeBaseUrl(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func (client *Client) BaseUrl() string {
	return client.baseUrl
}

// BuildUrl joins path onto the base. Leading slashes are dropped so the base
// path prefix (e.g. /v1) is always kept; a query string in path survives.
func (client *Client) BuildUrl(path string) string {
	return client.baseUrl + "/" + strings.TrimLeft(path, "/")
}

type Call struct {
	Method string
	Path   string
	Token  string
	Header http.Header
	Body   []byte
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (response *Response) OK() bool {
	return response.Status >= 200 && response.Status < 300
}

func (response *Response) IsJSON() bool {
	return strings.Contains(response.Header.Get("Content-Type"), "application/json")
}

// JSON decodes the body when the backend declared it as JSON.
func (response *Response) JSON() (interface{}, bool) {
	if !response.IsJSON() {
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal(response.Body, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Detail extracts the message of a FastAPI error body: a string detail, or
// the msg of the first validation error. Empty when neither is present.
func (response *Response) Detail() string {
	value, ok := response.JSON()
	if !ok {
		return ""
	}
	return DetailMessage(value)
}

func DetailMessage(value interface{}) string {
	body, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	switch detail := body["detail"].(type) {
	case string:
		return detail
	case []interface{}:
		if len(detail) == 0 {
			return ""
		}
		if first, ok := detail[0].(map[string]interface{}); ok {
			if msg, ok := first["msg"].(string); ok {
				return msg
			}
		}
	}
	return ""
}

func (client *Client) Do(ctx context.Context, call Call) (*Response, error) {
	const stage = "Performing backend request error."

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	method := call.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, client.BuildUrl(call.Path), body)
	if err != nil {
		return nil, &common.UpstreamUnavailableError{Cause: common.NewErr(stage, err)}
	}
	for name, values := range call.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, &common.UpstreamUnavailableError{Cause: common.NewErr(stage, err)}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &common.UpstreamUnavailableError{Cause: common.NewErr(stage, err)}
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   responseBody,
	}, nil
}

func (client *Client) Get(ctx context.Context, path string, token string) (*Response, error) {
	return client.Do(ctx, Call{Method: http.MethodGet, Path: path, Token: token})
}

func (client *Client) PostJSON(ctx context.Context, path string, token string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewErr("Encoding backend payload error.", err)
	}
	return client.Do(ctx, Call{
		Method: http.MethodPost,
		Path:   path,
		Token:  token,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	})
}

func (client *Client) Delete(ctx context.Context, path string, token string) (*Response, error) {
	return client.Do(ctx, Call{Method: http.MethodDelete, Path: path, Token: token})
}
