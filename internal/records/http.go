package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/submission"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a REST client for baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListItems(ctx context.Context, queueID string, state submission.State, offset, limit int) (Page, error) {
	q := url.Values{}
	q.Set("status", string(state))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page Page
	path := "/evaluation/" + url.PathEscape(queueID) + "/submission/bundle/all?" + q.Encode()
	err := c.do(ctx, "records.list", http.MethodGet, path, nil, &page)
	return page, err
}

func (c *HTTPClient) GetItem(ctx context.Context, id string) (*submission.Status, error) {
	var status submission.Status
	if err := c.do(ctx, "records.get", http.MethodGet, statusPath(id), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) UpdateItem(ctx context.Context, status *submission.Status) (*submission.Status, error) {
	var updated submission.Status
	if err := c.do(ctx, "records.update", http.MethodPut, statusPath(status.ID), status, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

type messageRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, recipient, subject, body string) error {
	return c.do(ctx, "records.message", http.MethodPost, "/message", messageRequest{
		Recipients: []string{recipient},
		Subject:    subject,
		Body:       body,
	}, nil)
}

type principal struct {
	OwnerID  string `json:"ownerId"`
	UserName string `json:"userName"`
	Name     string `json:"name"`
}

func (c *HTTPClient) PrincipalName(ctx context.Context, id string, team bool) (string, error) {
	var p principal
	if team {
		if err := c.do(ctx, "records.team", http.MethodGet, "/team/"+url.PathEscape(id), nil, &p); err != nil {
			return "", err
		}
		return p.Name, nil
	}
	if err := c.do(ctx, "records.profile", http.MethodGet, "/userProfile/"+url.PathEscape(id), nil, &p); err != nil {
		return "", err
	}
	return p.UserName, nil
}

func (c *HTTPClient) CurrentPrincipalID(ctx context.Context) (string, error) {
	var p principal
	if err := c.do(ctx, "records.profile", http.MethodGet, "/userProfile", nil, &p); err != nil {
		return "", err
	}
	return p.OwnerID, nil
}

func (c *HTTPClient) ResolveTemplate(ctx context.Context, ref string) (Template, error) {
	var t Template
	if err := c.do(ctx, "records.template", http.MethodGet, "/workflowTemplate/"+url.PathEscape(ref), nil, &t); err != nil {
		return Template{}, err
	}
	if t.Ref == "" {
		t.Ref = ref
	}
	if t.URL == "" || t.Entrypoint == "" {
		return Template{}, apperrors.Validation("template", fmt.Sprintf("template %s has no workflow URL or entrypoint", ref))
	}
	return t, nil
}

func statusPath(id string) string {
	return "/evaluation/submission/" + url.PathEscape(id) + "/status"
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Non-2xx responses become RemoteErrors classified by status code.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.FromStatus(op, resp.StatusCode, errorReason(msg))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorReason extracts {"reason": "..."} from an error body, falling back to
// the raw text.
func errorReason(body []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	return strings.TrimSpace(string(body))
}

var _ Client = (*HTTPClient)(nil)
