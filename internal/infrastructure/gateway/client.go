package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"payrecon/internal/config"
)

// ErrUpstreamFetch 网关接口调用失败
// 轮询驱动按记录隔离该错误（单条失败不中断批次），webhook 驱动原样上抛
var ErrUpstreamFetch = errors.New("网关接口调用失败")

// Client 支付网关 REST 客户端
//
// 只封装对账需要的几个接口：查订单、建订单、退款。
// 超时重试在这一层之内解决，引擎永远不等网络。
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg *config.GatewayConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.Endpoint(),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// envelope 网关统一响应包裹
type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUpstreamFetch, resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: 解析响应失败: %v", ErrUpstreamFetch, err)
	}

	return env.Data, nil
}

// GetOrder 查询网关订单，返回泛型报文，由 recon.ParseSnapshot 归一化
func (c *Client) GetOrder(ctx context.Context, remoteOrderID int64) (map[string]interface{}, error) {
	return c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/order/%d", remoteOrderID), nil)
}

// CreateOrderRequest 提交订单请求
// 支付方式相关的明细报文（卡、票据、转账）不在这里构造
type CreateOrderRequest struct {
	PayReference string `json:"pay_reference"`
	CustomerID   int64  `json:"customer_id"`
	Total        int64  `json:"total"`
	Method       string `json:"payment_method"`
}

// CreateOrderResult 网关受理结果
type CreateOrderResult struct {
	RemoteOrderID    int64
	RemoteCustomerID int64
	RemoteSiteID     int64
}

// CreateOrder 向网关提交一笔订单
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/order", req)
	if err != nil {
		return nil, err
	}

	result := &CreateOrderResult{}
	if id, ok := data["id"].(float64); ok {
		result.RemoteOrderID = int64(id)
	}
	if id, ok := data["customer_id"].(float64); ok {
		result.RemoteCustomerID = int64(id)
	}
	if id, ok := data["site_id"].(float64); ok {
		result.RemoteSiteID = int64(id)
	}

	if result.RemoteOrderID == 0 {
		return nil, fmt.Errorf("%w: 受理响应缺少订单 id", ErrUpstreamFetch)
	}

	return result, nil
}

// Refund 向网关发起全额退款
func (c *Client) Refund(ctx context.Context, remoteOrderID int64, amount int64) error {
	payload := map[string]interface{}{
		"order_id":    remoteOrderID,
		"refund_type": "total",
		// 网关侧金额是两位小数
		"refund_amount": float64(amount) / 100,
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/refund", payload)
	return err
}
