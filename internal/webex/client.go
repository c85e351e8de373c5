// Package webex is the REST client for the chat platform the relay runs on.
//
// Every call takes a context and goes through a shared rate limiter. The
// client holds the only long-lived credential in the process; it is read-only
// after construction.
package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"broadcastbot/pkg/logx"
)

const defaultBaseURL = "https://webexapis.com/v1"

type Config struct {
	Token      string
	BaseURL    string        // defaults to the public API
	Timeout    time.Duration // per-request; 0 means 30s
	RatePerSec int           // 0 means 10
}

type Client struct {
	base    string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("webex: access token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    base,
		token:   cfg.Token,
		hc:      &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

// Token exposes the credential for same-host attachment fetches.
func (c *Client) Token() string { return c.token }

func (c *Client) Me(ctx context.Context) (*Person, error) {
	var p Person
	if err := c.get(ctx, "/people/me", nil, &p); err != nil {
		return nil, err
	}
	if p.Avatar == "" {
		p.Avatar = DefaultAvatarURL
	}
	return &p, nil
}

func (c *Client) GetPerson(ctx context.Context, id string) (*Person, error) {
	var p Person
	if err := c.get(ctx, "/people/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := c.get(ctx, "/messages/"+url.PathEscape(id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetRoom(ctx context.Context, id string) (*Room, error) {
	var r Room
	if err := c.get(ctx, "/rooms/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	if err := c.get(ctx, "/organizations/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListMemberships enumerates the bot's own room memberships. The list is
// re-fetched on every broadcast; nothing is cached across events.
func (c *Client) ListMemberships(ctx context.Context) ([]Membership, error) {
	var out struct {
		Items []Membership `json:"items"`
	}
	if err := c.get(ctx, "/memberships", url.Values{"max": {"1000"}}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) DeleteMembership(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/memberships/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateMessage(ctx context.Context, m OutMessage) (*Message, error) {
	var created Message
	if err := c.do(ctx, http.MethodPost, "/messages", m, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateMessageFile sends markdown plus a single uploaded file as multipart
// form data. The platform accepts at most one file per message.
func (c *Client) CreateMessageFile(ctx context.Context, roomID, markdown string, f File) (*Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("roomId", roomID); err != nil {
		return nil, err
	}
	if markdown != "" {
		if err := mw.WriteField("markdown", markdown); err != nil {
			return nil, err
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}
	var created Message
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var out struct {
		Items []Webhook `json:"items"`
	}
	if err := c.get(ctx, "/webhooks", url.Values{"max": {"100"}}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateWebhook(ctx context.Context, w Webhook) (*Webhook, error) {
	var created Webhook
	if err := c.do(ctx, http.MethodPost, "/webhooks", w, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(id), nil, nil)
}

// FetchFile performs one attachment probe+fetch round against a content URL.
// The HEAD probe warms the content endpoint; readiness is decided by the
// Retry-After header on the GET response.
func (c *Client) FetchFile(ctx context.Context, fileURL string) (*FileFetch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return nil, err
	}
	head.Header.Set("Authorization", "Bearer "+c.token)
	if hr, err := c.hc.Do(head); err == nil {
		_ = hr.Body.Close()
		c.log.Debug("attachment probe", logx.String("url", fileURL), logx.Int("status", hr.StatusCode))
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	get.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.hc.Do(get)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
		return &FileFetch{RetryAfter: ra}, nil
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	return &FileFetch{Name: name, ContentType: ct, Data: data}, nil
}

// ---- internals ----

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	p := path
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, p, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	ae := &APIError{
		StatusCode: resp.StatusCode,
		TrackingID: resp.Header.Get("Trackingid"),
	}
	var payload struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(b, &payload); err == nil && payload.Message != "" {
		ae.Message = payload.Message
	} else {
		ae.Message = http.StatusText(resp.StatusCode)
	}
	return ae
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func filenameFromDisposition(disp string) string {
	if disp == "" {
		return "attachment"
	}
	if _, params, err := mime.ParseMediaType(disp); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	return "attachment"
}
