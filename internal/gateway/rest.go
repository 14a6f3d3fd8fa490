package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RESTGateway отправляет ордера брокеру по HTTP API.
//
// Каждый запрос подписывается HMAC-SHA256 по брокерским ключам:
// message = timestamp + method + path + body. Клиент использует
// connection pooling, общий таймаут операции задаёт контекст
// вызывающей стороны (обёртка с таймаутом).
type RESTGateway struct {
	baseURL string
	creds   BrokerCredentials
	client  *http.Client
}

// NewRESTGateway создаёт шлюз для живого брокерского API
func NewRESTGateway(baseURL string, creds BrokerCredentials) *RESTGateway {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &RESTGateway{
		baseURL: baseURL,
		creds:   creds,
		client:  &http.Client{Transport: transport},
	}
}

func (g *RESTGateway) Name() string {
	return "rest"
}

// Submit отправляет рыночный ордер.
// client_order_id делает запрос идемпотентным на стороне брокера.
func (g *RESTGateway) Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error) {
	var report ExecutionReport
	if err := g.do(ctx, http.MethodPost, "/v1/orders", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (g *RESTGateway) QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	var report ExecutionReport
	err := g.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (g *RESTGateway) Balance(ctx context.Context) (*AccountSnapshot, error) {
	var snap AccountSnapshot
	if err := g.do(ctx, http.MethodGet, "/v1/account", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (g *RESTGateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	path := "/v1/price?symbol=" + url.QueryEscape(symbol)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Price, nil
}

func (g *RESTGateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// do выполняет подписанный запрос и декодирует ответ
func (g *RESTGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.creds.APIKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", g.sign(timestamp, method, path, payload))

	resp, err := g.client.Do(req)
	if err != nil {
		// Сетевой сбой: запрос мог и не дойти, и дойти -
		// классификацию неопределённости делает обёртка с таймаутом
		return &GatewayError{Gateway: g.Name(), Op: method + " " + path, Original: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Gateway: g.Name(), Op: method + " " + path, Original: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrOrderNotFound
	case resp.StatusCode >= 500:
		return &GatewayError{
			Gateway:  g.Name(),
			Op:       method + " " + path,
			Original: fmt.Errorf("broker returned %d: %s", resp.StatusCode, brokerMessage(data)),
		}
	case resp.StatusCode >= 400:
		// Осмысленный отказ брокера - это ответ, а не сбой связи
		return fmt.Errorf("broker rejected request (%d): %s", resp.StatusCode, brokerMessage(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &GatewayError{Gateway: g.Name(), Op: method + " " + path, Original: err}
		}
	}
	return nil
}

// sign считает HMAC-SHA256 подпись запроса брокерским секретом
func (g *RESTGateway) sign(timestamp, method, path string, body []byte) string {
	h := hmac.New(sha256.New, []byte(g.creds.APISecret))
	h.Write([]byte(timestamp))
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func brokerMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}
