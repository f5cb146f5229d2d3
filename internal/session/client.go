package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/wagate/internal/media"
)

const (
	DefaultBaseURL = "http://127.0.0.1:3001"

	defaultHTTPTimeout = 2 * time.Minute
	maxDownloadBytes   = 64 << 20
)

// Options configures the gateway client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is the HTTP client of the session gateway. It implements
// media.Fetcher.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var _ media.Fetcher = (*Client)(nil)

// NewClient creates a gateway client.
func NewClient(log *slog.Logger, opts Options) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse session base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("session base url must be http or https: %q", raw)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(opts.Token),
		http:    &http.Client{Timeout: opts.Timeout},
		logger:  log.With(slog.String("client", "session")),
	}, nil
}

// Status reports the gateway connection state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	if err := c.doJSON(ctx, http.MethodGet, "/status", nil, nil, &out); err != nil {
		return Status{}, err
	}
	return out, nil
}

// GetMessage returns a message by id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var out Message
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, nil, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// GetMedia downloads the media payload of a message.
func (c *Client) GetMedia(ctx context.Context, messageID string) (MediaPayload, error) {
	var env mediaEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID)+"/media", nil, nil, &env); err != nil {
		return MediaPayload{}, err
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return MediaPayload{}, fmt.Errorf("decode media payload: %w", err)
	}
	return MediaPayload{Data: data, MimeType: env.MimeType, Filename: env.Filename}, nil
}

// ListChats returns the chats whose name contains search, or all of them.
func (c *Client) ListChats(ctx context.Context, search string) ([]Chat, error) {
	q := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("search", s)
	}
	var out []Chat
	if err := c.doJSON(ctx, http.MethodGet, "/chats", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns up to limit recent messages of a chat.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Message
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, to, body string) (Message, error) {
	var out Message
	if err := c.doJSON(ctx, http.MethodPost, "/messages/text", nil, sendTextBody{To: to, Body: body}, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// SendMedia sends a media message.
func (c *Client) SendMedia(ctx context.Context, req SendMediaRequest) (Message, error) {
	body := sendMediaBody{
		To:       req.To,
		Data:     base64.StdEncoding.EncodeToString(req.Data),
		MimeType: req.MimeType,
		Filename: req.Filename,
		Caption:  req.Caption,
		Voice:    req.Voice,
	}
	var out Message
	if err := c.doJSON(ctx, http.MethodPost, "/messages/media", nil, body, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// MessageByID implements media.Fetcher.
func (c *Client) MessageByID(ctx context.Context, messageID string) (media.RemoteMessage, bool, error) {
	msg, err := c.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return media.RemoteMessage{}, false, nil
		}
		return media.RemoteMessage{}, false, err
	}
	return media.RemoteMessage{ID: msg.ID, HasMedia: msg.HasMedia}, true, nil
}

// DownloadMedia implements media.Fetcher.
func (c *Client) DownloadMedia(ctx context.Context, messageID string) (*media.Payload, error) {
	payload, err := c.GetMedia(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media.Payload{Data: payload.Data, MimeType: payload.MimeType, Filename: payload.Filename}, nil
}

// ProfilePictureURL implements media.Fetcher.
func (c *Client) ProfilePictureURL(ctx context.Context, chatID string) (string, error) {
	var env photoEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/profile-picture", nil, nil, &env); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(env.URL), nil
}

// Download implements media.Fetcher. The bearer token is only sent to the
// gateway itself.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse download url: %w", err)
	}
	if !target.IsAbs() {
		target = c.baseURL.ResolveReference(target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", err
	}
	if target.Host == c.baseURL.Host {
		c.authorize(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer c.closeBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download %s: status %d", target.Host, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read download body: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("download exceeds %d bytes", maxDownloadBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read session response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrNotReady, gatewayMessage(raw))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("session gateway %s %s: status %d: %s", method, path, resp.StatusCode, gatewayMessage(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode session response: %w", err)
	}
	return nil
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("close response body failed", slog.Any("error", err))
	}
}

func gatewayMessage(raw []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
