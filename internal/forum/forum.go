// Package forum is a client for the XenForo REST API.
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBadCredentials is returned by Authenticate when the forum rejects the login.
var ErrBadCredentials = errors.New("invalid login or password")

// Client talks to one forum. Requests are made as BotUserID.
type Client struct {
	baseURL   string
	apiKey    string
	botUserID int64
	http      *http.Client
}

// NewClient creates a client for the forum at baseURL, e.g.
// "https://forum.example.com".
func NewClient(baseURL, apiKey string, botUserID int64) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		botUserID: botUserID,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("XF-Api-Key", c.apiKey)
	if c.botUserID != 0 {
		req.Header.Set("XF-Api-User", strconv.FormatInt(c.botUserID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling forum: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading forum response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && len(ae.Errors) > 0 {
			return resp.StatusCode, fmt.Errorf("forum %s: %s (%s)", path, ae.Errors[0].Message, ae.Errors[0].Code)
		}
		return resp.StatusCode, fmt.Errorf("forum %s: status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding forum response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// PostToThread adds a reply to a thread.
func (c *Client) PostToThread(ctx context.Context, threadID int64, text string) error {
	form := url.Values{
		"thread_id": {strconv.FormatInt(threadID, 10)},
		"message":   {text},
	}
	_, err := c.post(ctx, "posts/", form, nil)
	return err
}

// StartPrivateMessage starts a conversation with the given users.
func (c *Client) StartPrivateMessage(ctx context.Context, userIDs []int64, title, body string) error {
	if len(userIDs) == 0 {
		return nil
	}
	form := url.Values{
		"title":   {title},
		"message": {body},
	}
	for _, id := range userIDs {
		form.Add("recipient_ids[]", strconv.FormatInt(id, 10))
	}
	_, err := c.post(ctx, "conversations/", form, nil)
	return err
}

type authResponse struct {
	Success bool `json:"success"`
	User    struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Authenticate checks a member's credentials with the forum and returns
// their user id and name.
func (c *Client) Authenticate(ctx context.Context, login, password string) (int64, string, error) {
	var resp authResponse
	status, err := c.post(ctx, "auth/", url.Values{"login": {login}, "password": {password}}, &resp)
	if status == http.StatusBadRequest || status == http.StatusForbidden {
		return 0, "", ErrBadCredentials
	}
	if err != nil {
		return 0, "", err
	}
	if !resp.Success || resp.User.UserID == 0 {
		return 0, "", ErrBadCredentials
	}
	return resp.User.UserID, resp.User.Username, nil
}
