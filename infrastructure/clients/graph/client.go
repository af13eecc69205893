package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"social-publisher/domain/model"

	"github.com/google/go-querystring/query"
)

const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Client is a thin Graph API client. Bodies are form encoded from tagged
// structs.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph status=%d code=%d subcode=%d: %s", e.Status, e.Code, e.Subcode, e.Message)
}

// TokenInvalid reports an expired or revoked access token.
func (e *APIError) TokenInvalid() bool {
	return e.Code == 190 || e.Status == http.StatusUnauthorized
}

type idResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Post sends form (a tagged struct or url.Values) to path and decodes the id.
func (c *Client) Post(ctx context.Context, path, accessToken string, form interface{}) (string, error) {
	values, err := encode(form)
	if err != nil {
		return "", err
	}
	values.Set("access_token", accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	var out idResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}

// Get decodes the JSON response of path into out.
func (c *Client) Get(ctx context.Context, path, accessToken string, params interface{}, out interface{}) error {
	values, err := encode(params)
	if err != nil {
		return err
	}
	values.Set("access_token", accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		apiErr := envelope.Error
		apiErr.Status = res.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = string(body)
			if len(apiErr.Message) > 500 {
				apiErr.Message = apiErr.Message[:500]
			}
		}
		return &apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func encode(v interface{}) (url.Values, error) {
	switch t := v.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		out := url.Values{}
		for k, vs := range t {
			out[k] = append([]string(nil), vs...)
		}
		return out, nil
	default:
		return query.Values(v)
	}
}

// publishError maps a Graph failure to the publish taxonomy.
func publishError(ctx context.Context, p model.Platform, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return model.NewPublishError(model.KindCancelled, p, op, ctx.Err())
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		kind := model.KindPublishFailed
		if apiErr.TokenInvalid() {
			kind = model.KindCredentialExpired
		}
		pe := model.NewPublishError(kind, p, op, apiErr)
		pe.StatusCode = apiErr.Status
		return pe
	}
	return model.NewPublishError(model.KindPublishFailed, p, op, err)
}
