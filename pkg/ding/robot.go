// Package ding implements the DingTalk custom-robot webhook protocol:
// HMAC-SHA256 signed URLs, markdown messages with @-mentions, and bounded
// retry on transient failures.
package ding

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://oapi.dingtalk.com/robot/send"

// RobotError is a permanent delivery failure: a non-retryable HTTP status
// or a non-zero platform errcode. Callers must not retry these.
type RobotError struct {
	Msg string
}

func (e *RobotError) Error() string { return e.Msg }

type Robot struct {
	AccessToken string
	Secret      string

	// BaseURL defaults to the DingTalk endpoint, tests point it elsewhere.
	BaseURL string
	Timeout time.Duration
	// MaxRetries bounds transient-failure retries per send; attempts total
	// MaxRetries+1.
	MaxRetries int
	Backoff    time.Duration

	// Now is the signing clock, nil means time.Now. Injected for
	// deterministic signature tests.
	Now func() time.Time

	Client *http.Client
}

func NewRobot(accessToken, secret string, timeout time.Duration) *Robot {
	return &Robot{
		AccessToken: accessToken,
		Secret:      secret,
		BaseURL:     DefaultBaseURL,
		Timeout:     timeout,
		MaxRetries:  4,
		Backoff:     500 * time.Millisecond,
	}
}

func hmacSHA256B64(secret, content string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignedURL builds the webhook URL with timestamp and sign query parameters.
// The signature covers "timestamp\nsecret", per the platform's contract.
func (r *Robot) SignedURL(nowMs int64) string {
	u := fmt.Sprintf("%s?access_token=%s", r.BaseURL, url.QueryEscape(r.AccessToken))
	if r.Secret == "" {
		return u
	}
	stringToSign := fmt.Sprintf("%d\n%s", nowMs, r.Secret)
	sign := url.QueryEscape(hmacSHA256B64(r.Secret, stringToSign))
	return fmt.Sprintf("%s&timestamp=%d&sign=%s", u, nowMs, sign)
}

func (r *Robot) nowMs() int64 {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().UnixMilli()
}

func (r *Robot) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (r *Robot) post(ctx context.Context, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = r.postOnce(ctx, payload)
		if lastErr == nil {
			return nil
		}
		var perm *RobotError
		if errors.As(lastErr, &perm) {
			return lastErr
		}
	}
	return lastErr
}

func (r *Robot) postOnce(ctx context.Context, payload []byte) error {
	callCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.SignedURL(r.nowMs()), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		if retryableStatus(resp.StatusCode) {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return &RobotError{Msg: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return &RobotError{Msg: fmt.Sprintf("invalid JSON response: %s", strings.TrimSpace(string(raw)))}
	}
	if api.ErrCode != 0 {
		return &RobotError{Msg: fmt.Sprintf("dingtalk err %d: %s", api.ErrCode, api.ErrMsg)}
	}
	return nil
}

func atBlock(atUserIDs, atMobiles []string) map[string]any {
	if atUserIDs == nil {
		atUserIDs = []string{}
	}
	if atMobiles == nil {
		atMobiles = []string{}
	}
	return map[string]any{
		"isAtAll":   false,
		"atUserIds": atUserIDs,
		"atMobiles": atMobiles,
	}
}

// AppendMentions appends @userId / @mobile markers; the platform only
// mentions people whose markers appear in the text body.
func AppendMentions(text string, atUserIDs, atMobiles []string) string {
	var suffixes []string
	for _, uid := range atUserIDs {
		suffixes = append(suffixes, "@"+uid)
	}
	for _, m := range atMobiles {
		suffixes = append(suffixes, "@"+m)
	}
	if len(suffixes) == 0 {
		return text
	}
	joiner := ""
	if text != "" && !strings.HasSuffix(text, "\n") {
		joiner = "\n\n"
	}
	return text + joiner + strings.Join(suffixes, " ")
}

// SendMarkdown delivers one markdown message, retrying transient failures
// within the bounded budget.
func (r *Robot) SendMarkdown(ctx context.Context, title, text string, atUserIDs, atMobiles []string) error {
	body := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"title": title,
			"text":  AppendMentions(text, atUserIDs, atMobiles),
		},
		"at": atBlock(atUserIDs, atMobiles),
	}
	return r.post(ctx, body)
}

// SendText delivers one plain text message.
func (r *Robot) SendText(ctx context.Context, content string, atUserIDs, atMobiles []string) error {
	body := map[string]any{
		"msgtype": "text",
		"text": map[string]any{
			"content": AppendMentions(content, atUserIDs, atMobiles),
		},
		"at": atBlock(atUserIDs, atMobiles),
	}
	return r.post(ctx, body)
}
