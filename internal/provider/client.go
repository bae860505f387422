package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ErrProviderUnavailable covers transport failures and non-2xx answers from
// the external messaging gateway.  Callers record it as a retryable
// connection_error on the instance.
var ErrProviderUnavailable = errors.New("messaging provider unavailable")

// ConnectResult is the gateway's answer to a connect call.  QRBase64 is
// empty when the instance paired without a QR scan.
type ConnectResult struct {
	QRBase64 string
}

// SendTextRequest is the outbound message payload forwarded to the gateway.
type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Connector is the outbound interface to the external messaging gateway.
type Connector interface {
	Connect(ctx context.Context, endpoint string, apiKey string, instanceName string) (*ConnectResult, error)
	SendText(ctx context.Context, endpoint string, apiKey string, instanceName string, message SendTextRequest) error
	Logout(ctx context.Context, endpoint string, apiKey string, instanceName string) error
}

// HTTPConnector talks to the gateway's HTTP API with bounded timeouts per
// call type.
type HTTPConnector struct {
	connectClient *http.Client
	sendClient    *http.Client
}

func NewHTTPConnector(connectTimeout time.Duration, sendTimeout time.Duration) *HTTPConnector {
	return &HTTPConnector{
		connectClient: &http.Client{Timeout: connectTimeout},
		sendClient:    &http.Client{Timeout: sendTimeout},
	}
}

type connectResponse struct {
	Base64 string `json:"base64"`
}

func (c *HTTPConnector) Connect(ctx context.Context, endpoint string, apiKey string, instanceName string) (*ConnectResult, error) {

	callDurationTimer := prometheus.NewTimer(connectCallDuration)
	defer callDurationTimer.ObserveDuration()

	url := fmt.Sprintf("%s/instance/connect/%s", strings.TrimRight(endpoint, "/"), instanceName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", apiKey)

	resp, err := c.connectClient.Do(req)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "instance": instanceName}).Error("Provider connect call failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.WithFields(logrus.Fields{"status": resp.StatusCode, "instance": instanceName}).Error("Provider connect call rejected")
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var connectResp connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		return nil, fmt.Errorf("%w: unable to decode connect response: %v", ErrProviderUnavailable, err)
	}

	return &ConnectResult{QRBase64: connectResp.Base64}, nil
}

func (c *HTTPConnector) SendText(ctx context.Context, endpoint string, apiKey string, instanceName string, message SendTextRequest) error {

	callDurationTimer := prometheus.NewTimer(sendCallDuration)
	defer callDurationTimer.ObserveDuration()

	url := fmt.Sprintf("%s/message/sendText/%s", strings.TrimRight(endpoint, "/"), instanceName)

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sendClient.Do(req)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "instance": instanceName}).Error("Provider send call failed")
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.WithFields(logrus.Fields{"status": resp.StatusCode, "instance": instanceName}).Error("Provider send call rejected")
		return fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	return nil
}

// Logout tears down the gateway side of an instance session.
func (c *HTTPConnector) Logout(ctx context.Context, endpoint string, apiKey string, instanceName string) error {

	url := fmt.Sprintf("%s/instance/logout/%s", strings.TrimRight(endpoint, "/"), instanceName)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", apiKey)

	resp, err := c.sendClient.Do(req)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "instance": instanceName}).Error("Provider logout call failed")
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.WithFields(logrus.Fields{"status": resp.StatusCode, "instance": instanceName}).Error("Provider logout call rejected")
		return fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	return nil
}
