package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PushRegistrar forwards device push tokens to the notifications service so
// it can target the account. Registration is best effort: login never fails
// because the notifications service is down.
type PushRegistrar interface {
	RegisterDevice(ctx context.Context, userID, pushToken string) error
}

// PushRegistrarFunc adapts a function to the PushRegistrar interface.
type PushRegistrarFunc func(ctx context.Context, userID, pushToken string) error

// RegisterDevice implements PushRegistrar.
func (f PushRegistrarFunc) RegisterDevice(ctx context.Context, userID, pushToken string) error {
	if f == nil {
		return nil
	}
	return f(ctx, userID, pushToken)
}

// NoopPushRegistrar does nothing; the default when no notifications service
// is configured.
type NoopPushRegistrar struct{}

func (NoopPushRegistrar) RegisterDevice(context.Context, string, string) error {
	return nil
}

const defaultNotificationsTimeout = 5 * time.Second

// NotificationsClient posts device registrations to the notifications
// service over HTTP.
type NotificationsClient struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

// NotificationsClientOption customizes the client.
type NotificationsClientOption func(*NotificationsClient)

// WithNotificationsHTTPClient swaps the underlying HTTP client.
func WithNotificationsHTTPClient(client *http.Client) NotificationsClientOption {
	return func(c *NotificationsClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithNotificationsLogger overrides the client logger.
func WithNotificationsLogger(logger Logger) NotificationsClientOption {
	return func(c *NotificationsClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewNotificationsClient points a client at the notifications service.
func NewNotificationsClient(baseURL string, opts ...NotificationsClientOption) *NotificationsClient {
	c := &NotificationsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultNotificationsTimeout},
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

var _ PushRegistrar = (*NotificationsClient)(nil)

type registerDevicePayload struct {
	FCMToken string `json:"fcm_token"`
	UserID   string `json:"user_id"`
}

// RegisterDevice posts the push token to the notifications service. A non-2xx
// response is an error; callers decide whether to care.
func (c *NotificationsClient) RegisterDevice(ctx context.Context, userID, pushToken string) error {
	body, err := json.Marshal(registerDevicePayload{
		FCMToken: pushToken,
		UserID:   userID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register-device", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notifications service responded %d", resp.StatusCode)
	}

	c.logger.Debug("registered device for user %s", userID)

	return nil
}
