package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL   = "https://i.instagram.com/api/v1"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// WebAPI implements API against Instagram's private web endpoints.
type WebAPI struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client

	mu      sync.Mutex
	session *Session
}

// WebAPIOption customizes a WebAPI.
type WebAPIOption func(*WebAPI)

// WithBaseURL overrides the endpoint root, used by tests.
func WithBaseURL(u string) WebAPIOption {
	return func(a *WebAPI) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebAPIOption {
	return func(a *WebAPI) { a.httpClient = c }
}

// NewWebAPI creates the HTTP transport.
func NewWebAPI(opts ...WebAPIOption) *WebAPI {
	a := &WebAPI{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// wire DTOs, kept private to this file.

type wireUser struct {
	PK             json.Number `json:"pk"`
	Username       string      `json:"username"`
	FullName       string      `json:"full_name"`
	ProfilePicURL  string      `json:"profile_pic_url"`
	IsPrivate      bool        `json:"is_private"`
	IsVerified     bool        `json:"is_verified"`
	IsBusiness     bool        `json:"is_business"`
	FollowerCount  int         `json:"follower_count"`
	FollowingCount int         `json:"following_count"`
	MediaCount     int         `json:"media_count"`
	Biography      string      `json:"biography"`
	ExternalURL    string      `json:"external_url"`
}

type wireItem struct {
	ItemID    string      `json:"item_id"`
	UserID    json.Number `json:"user_id"`
	Timestamp json.Number `json:"timestamp"`
	ItemType  string      `json:"item_type"`
	Text      string      `json:"text"`
	Media     *struct {
		MediaType     int `json:"media_type"`
		ImageVersions struct {
			Candidates []struct {
				URL string `json:"url"`
			} `json:"candidates"`
		} `json:"image_versions2"`
		VideoVersions []struct {
			URL string `json:"url"`
		} `json:"video_versions"`
	} `json:"media"`
	RepliedToMessage *struct {
		ItemID string `json:"item_id"`
	} `json:"replied_to_message"`
	Reactions *struct {
		Emojis []struct {
			TargetItemID string `json:"target_item_id"`
		} `json:"emojis"`
	} `json:"reactions"`
	Sticker *struct {
		ID string `json:"id"`
	} `json:"sticker"`
}

type wireThread struct {
	ThreadID     string      `json:"thread_id"`
	ThreadTitle  string      `json:"thread_title"`
	Users        []wireUser  `json:"users"`
	Items        []wireItem  `json:"items"`
	LastActivity json.Number `json:"last_activity_at"`
	IsGroup      bool        `json:"is_group"`
}

func (u wireUser) toRaw() RawUser {
	return RawUser{
		UserID:         u.PK.String(),
		Username:       u.Username,
		FullName:       u.FullName,
		ProfilePicURL:  u.ProfilePicURL,
		IsPrivate:      u.IsPrivate,
		IsVerified:     u.IsVerified,
		IsBusiness:     u.IsBusiness,
		FollowerCount:  u.FollowerCount,
		FollowingCount: u.FollowingCount,
		MediaCount:     u.MediaCount,
		Biography:      u.Biography,
		ExternalURL:    u.ExternalURL,
	}
}

func (t wireThread) toRaw() RawThread {
	raw := RawThread{
		ThreadID:     t.ThreadID,
		Title:        t.ThreadTitle,
		MessageCount: len(t.Items),
		IsGroup:      t.IsGroup,
	}
	for _, u := range t.Users {
		raw.Users = append(raw.Users, u.toRaw())
	}
	if ts := microsToTime(t.LastActivity); ts != nil {
		raw.LastActivity = ts
	}
	return raw
}

func (i wireItem) toRaw(threadID, ownerID string) RawMessage {
	msg := RawMessage{
		MessageID:   i.ItemID,
		ThreadID:    threadID,
		UserID:      i.UserID.String(),
		Text:        i.Text,
		ItemType:    i.ItemType,
		IsFromOwner: i.UserID.String() == ownerID,
	}
	msg.Timestamp = microsToTime(i.Timestamp)
	if i.Media != nil {
		msg.MediaType = i.Media.MediaType
		if len(i.Media.VideoVersions) > 0 {
			msg.MediaURL = i.Media.VideoVersions[0].URL
		} else if len(i.Media.ImageVersions.Candidates) > 0 {
			msg.MediaURL = i.Media.ImageVersions.Candidates[0].URL
		}
	}
	if i.RepliedToMessage != nil {
		msg.ReplyToID = i.RepliedToMessage.ItemID
	}
	if i.Reactions != nil && len(i.Reactions.Emojis) > 0 {
		msg.ReactionTo = i.Reactions.Emojis[0].TargetItemID
	}
	if i.Sticker != nil {
		msg.StickerID = i.Sticker.ID
	}
	return msg
}

// microsToTime converts an epoch-microseconds number to a time pointer,
// nil when absent or malformed.
func microsToTime(n json.Number) *time.Time {
	if n.String() == "" {
		return nil
	}
	micros, err := n.Int64()
	if err != nil || micros == 0 {
		return nil
	}
	t := time.UnixMicro(micros).UTC()
	return &t
}

func (a *WebAPI) Login(ctx context.Context, username, password string) (*Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("device_id", uuid.NewString())

	var resp struct {
		LoggedInUser wireUser `json:"logged_in_user"`
		Status       string   `json:"status"`
	}
	headers, err := a.postForm(ctx, "/accounts/login/", form, &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("login rejected with status %q", resp.Status)
	}

	session := &Session{
		UserID:        resp.LoggedInUser.PK.String(),
		Username:      resp.LoggedInUser.Username,
		Authorization: headers.Get("Ig-Set-Authorization"),
		Cookies:       map[string]string{},
		DeviceID:      form.Get("device_id"),
		CreatedAt:     time.Now().UTC(),
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	return session, nil
}

func (a *WebAPI) Resume(ctx context.Context, session *Session) error {
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	if err := a.Ping(ctx); err != nil {
		a.mu.Lock()
		a.session = nil
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *WebAPI) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := a.get(ctx, "/accounts/current_user/", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return ErrLoginRequired
	}
	return nil
}

func (a *WebAPI) DirectThreads(ctx context.Context, limit int) ([]RawThread, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Inbox struct {
			Threads []wireThread `json:"threads"`
		} `json:"inbox"`
		Status string `json:"status"`
	}
	if err := a.get(ctx, "/direct_v2/inbox/", query, &resp); err != nil {
		return nil, err
	}

	threads := make([]RawThread, 0, len(resp.Inbox.Threads))
	for _, t := range resp.Inbox.Threads {
		threads = append(threads, t.toRaw())
	}
	return threads, nil
}

func (a *WebAPI) ThreadMessages(ctx context.Context, threadID string, limit int, maxID string) ([]RawMessage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if maxID != "" {
		query.Set("cursor", maxID)
	}

	var resp struct {
		Thread wireThread `json:"thread"`
		Status string     `json:"status"`
	}
	if err := a.get(ctx, "/direct_v2/threads/"+url.PathEscape(threadID)+"/", query, &resp); err != nil {
		return nil, err
	}

	ownerID := a.ownerID()
	messages := make([]RawMessage, 0, len(resp.Thread.Items))
	for _, item := range resp.Thread.Items {
		messages = append(messages, item.toRaw(threadID, ownerID))
	}
	return messages, nil
}

func (a *WebAPI) UserInfo(ctx context.Context, username string) (*RawUser, error) {
	var resp struct {
		User   wireUser `json:"user"`
		Status string   `json:"status"`
	}
	if err := a.get(ctx, "/users/"+url.PathEscape(username)+"/usernameinfo/", nil, &resp); err != nil {
		return nil, err
	}
	user := resp.User.toRaw()
	return &user, nil
}

func (a *WebAPI) SendText(ctx context.Context, threadID, text string, userIDs []string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("client_context", uuid.NewString())
	if threadID != "" {
		form.Set("thread_ids", "["+threadID+"]")
	} else if len(userIDs) > 0 {
		form.Set("recipient_users", "[["+strings.Join(userIDs, ",")+"]]")
	} else {
		return "", fmt.Errorf("send requires a thread id or recipient users")
	}

	var resp struct {
		Payload struct {
			ItemID string `json:"item_id"`
		} `json:"payload"`
		Status string `json:"status"`
	}
	if _, err := a.postForm(ctx, "/direct_v2/threads/broadcast/text/", form, &resp); err != nil {
		return "", err
	}
	if resp.Status != "ok" {
		return "", fmt.Errorf("send rejected with status %q", resp.Status)
	}
	return resp.Payload.ItemID, nil
}

func (a *WebAPI) AccountInfo(ctx context.Context) (*RawAccount, error) {
	var resp struct {
		User struct {
			wireUser
			Email       string `json:"email"`
			PhoneNumber string `json:"phone_number"`
		} `json:"user"`
		Status string `json:"status"`
	}
	if err := a.get(ctx, "/accounts/current_user/", nil, &resp); err != nil {
		return nil, err
	}

	return &RawAccount{
		RawUser:     resp.User.toRaw(),
		Email:       resp.User.Email,
		PhoneNumber: resp.User.PhoneNumber,
	}, nil
}

func (a *WebAPI) ownerID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.UserID
}

func (a *WebAPI) get(ctx context.Context, path string, query url.Values, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return a.do(req, out)
}

func (a *WebAPI) postForm(ctx context.Context, path string, form url.Values, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	headers, err := a.doWithHeaders(req, out)
	if err != nil {
		return nil, err
	}
	return headers, nil
}

func (a *WebAPI) do(req *http.Request, out any) error {
	_, err := a.doWithHeaders(req, out)
	return err
}

func (a *WebAPI) doWithHeaders(req *http.Request, out any) (http.Header, error) {
	req.Header.Set("User-Agent", a.userAgent)

	a.mu.Lock()
	if a.session != nil {
		if a.session.Authorization != "" {
			req.Header.Set("Authorization", a.session.Authorization)
		}
		for name, value := range a.session.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
	a.mu.Unlock()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrLoginRequired
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(body))
	}

	if out != nil {
		dec := json.NewDecoder(strings.NewReader(string(body)))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func truncateBody(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
