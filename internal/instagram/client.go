package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/resilience"
)

// Client is the bridge's view of an Instagram account. It wraps an API
// transport with session persistence, authentication state and a
// circuit breaker over the data path. All methods are safe for
// concurrent use.
type Client struct {
	api     API
	cfg     config.InstagramConfig
	logger  *slog.Logger
	breaker *resilience.Breaker

	mu            sync.Mutex
	session       *Session
	authenticated bool
}

// NewClient creates a client over the given transport. It does not
// authenticate; call Authenticate before fetching data.
func NewClient(api API, cfg config.InstagramConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:     api,
		cfg:     cfg,
		logger:  logger.With("component", "instagram"),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "instagram_api"}, logger),
	}
}

// Authenticate establishes a session, preferring a saved session file
// over a fresh credential login. A successful fresh login is persisted
// for the next run.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated {
		return nil
	}

	if session, ok, err := LoadSession(c.cfg.SessionFile); err != nil {
		c.logger.Warn("Failed to load saved session", "error", err)
	} else if ok {
		c.logger.Info("Loading existing session", "username", session.Username)
		if err := c.api.Resume(ctx, session); err == nil {
			c.session = session
			c.authenticated = true
			c.logger.Info("Session loaded successfully")
			return nil
		} else if errors.Is(err, ErrLoginRequired) {
			c.logger.Info("Session expired, re-authenticating")
		} else {
			c.logger.Warn("Session resume failed", "error", err)
		}
	}

	c.logger.Info("Authenticating with Instagram", "username", c.cfg.Username)
	session, err := c.api.Login(ctx, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if err := session.Save(c.cfg.SessionFile); err != nil {
		c.logger.Warn("Failed to persist session", "error", err)
	}

	c.session = session
	c.authenticated = true
	c.logger.Info("Authentication successful")
	return nil
}

func (c *Client) requireAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

// DirectThreads fetches the inbox, most recent threads first.
func (c *Client) DirectThreads(ctx context.Context, limit int) ([]RawThread, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.cfg.ThreadLimit
	}

	c.logger.Debug("Fetching direct threads", "limit", limit)
	var threads []RawThread
	err := c.breaker.Execute(func() error {
		var err error
		threads, err = c.api.DirectThreads(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch direct threads: %w", err)
	}
	c.logger.Debug("Fetched threads", "count", len(threads))
	return threads, nil
}

// ThreadMessages fetches messages from one thread.
func (c *Client) ThreadMessages(ctx context.Context, threadID string, limit int, maxID string) ([]RawMessage, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.cfg.BatchSize
	}

	c.logger.Debug("Fetching thread messages", "thread_id", threadID, "limit", limit)
	var messages []RawMessage
	err := c.breaker.Execute(func() error {
		var err error
		messages, err = c.api.ThreadMessages(ctx, threadID, limit, maxID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for thread %s: %w", threadID, err)
	}
	c.logger.Debug("Fetched messages", "thread_id", threadID, "count", len(messages))
	return messages, nil
}

// UserInfo looks up a profile by username. A lookup failure is reported
// as an error; callers that tolerate missing users log and continue.
func (c *Client) UserInfo(ctx context.Context, username string) (*RawUser, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	var user *RawUser
	err := c.breaker.Execute(func() error {
		var err error
		user, err = c.api.UserInfo(ctx, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info for %s: %w", username, err)
	}
	return user, nil
}

// SendText sends a text message to a thread, or to specific users when
// threadID is empty.
func (c *Client) SendText(ctx context.Context, threadID, text string, userIDs []string) (string, error) {
	if err := c.requireAuth(); err != nil {
		return "", err
	}

	c.logger.Info("Sending message", "thread_id", threadID)
	var messageID string
	err := c.breaker.Execute(func() error {
		var err error
		messageID, err = c.api.SendText(ctx, threadID, text, userIDs)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return messageID, nil
}

// AccountInfo returns the authenticated account's profile.
func (c *Client) AccountInfo(ctx context.Context) (*RawAccount, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	account, err := c.api.AccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account info: %w", err)
	}
	return account, nil
}

// TestConnection verifies the session is live. It never panics and
// reports failure as an error, so health checks and sync cycles can
// branch on it.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	if err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Close persists the current session so the next run can resume it.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated && c.session != nil {
		if err := c.session.Save(c.cfg.SessionFile); err != nil {
			c.logger.Error("Failed to save session on close", "error", err)
			return
		}
	}
	c.logger.Info("Instagram client closed")
}
