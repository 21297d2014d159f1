package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"creditpay/internal/config"
)

// HTTPClient 通过 HTTP 调用真实支付网关
type HTTPClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewHTTPClient(cfg *config.GatewayConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type cancelRequest struct {
	CancelReason string `json:"cancelReason"`
}

func (c *HTTPClient) Confirm(ctx context.Context, paymentKey, externalOrderID string, amount int64) (*ConfirmResult, error) {
	body := &confirmRequest{
		PaymentKey: paymentKey,
		OrderID:    externalOrderID,
		Amount:     amount,
	}

	var result ConfirmResult
	err := c.post(ctx, "/v1/payments/confirm", body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, paymentKey, reason string) (*CancelResult, error) {
	body := &cancelRequest{CancelReason: reason}

	var result CancelResult
	err := c.post(ctx, fmt.Sprintf("/v1/payments/%s/cancel", paymentKey), body, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("序列化网关请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造网关请求失败: %w", err)
	}

	// 网关使用 secret key 做 Basic 认证，密码位为空
	auth := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("调用支付网关失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取网关响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		gwErr := &Error{}
		if jsonErr := json.Unmarshal(data, gwErr); jsonErr != nil || gwErr.Message == "" {
			gwErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
			gwErr.Message = string(data)
		}
		return gwErr
	}

	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("解析网关响应失败: %w", err)
	}
	return nil
}
