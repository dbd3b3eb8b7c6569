package gateway

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPClient talks to the gateway's open API: it signs outbound form
// parameters with the merchant private key and parses JSON responses. It is
// a thin I/O wrapper; all reconciliation decisions live in the service layer.
type HTTPClient struct {
	endpoint string
	appID    string
	priv     *rsa.PrivateKey
	http     *http.Client
}

func NewHTTPClient(endpoint, appID string, privateKeyPEM []byte, timeout time.Duration) (*HTTPClient, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("merchant private key: no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8, err8 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err8 != nil {
			return nil, fmt.Errorf("merchant private key parse error: %v", err)
		}
		rsaKey, ok := pkcs8.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("merchant private key is not RSA")
		}
		key = rsaKey
	}
	return &HTTPClient{
		endpoint: endpoint,
		appID:    appID,
		priv:     key,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type queryResponse struct {
	Code        string `json:"code"`
	TradeStatus string `json:"trade_status"`
	TradeNo     string `json:"trade_no"`
	TotalAmount string `json:"total_amount"`
}

func (c *HTTPClient) QueryTrade(ctx context.Context, outTradeNo string) (*QueryResult, error) {
	params := map[string]string{
		"app_id":       c.appID,
		"method":       "trade.query",
		"out_trade_no": outTradeNo,
		"timestamp":    time.Now().Format("2006-01-02 15:04:05"),
	}

	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("trade query response decode error: %v", err)
	}

	// Code 40004 means the gateway has no trade for this order yet.
	if resp.Code != "10000" {
		return &QueryResult{Exists: false}, nil
	}

	amount, err := decimal.NewFromString(resp.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("trade query amount decode error: %v", err)
	}

	return &QueryResult{
		Exists:      true,
		TradeStatus: TradeStatus(resp.TradeStatus),
		TradeNo:     resp.TradeNo,
		TotalAmount: amount,
	}, nil
}

type refundResponse struct {
	Code         string `json:"code"`
	OutRequestNo string `json:"out_request_no"`
	SubMsg       string `json:"sub_msg"`
}

func (c *HTTPClient) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	params := map[string]string{
		"app_id":        c.appID,
		"method":        "trade.refund",
		"out_trade_no":  req.OutTradeNo,
		"trade_no":      req.TradeNo,
		"refund_amount": req.Amount.StringFixed(2),
		"refund_reason": req.Reason,
		"timestamp":     time.Now().Format("2006-01-02 15:04:05"),
	}

	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}

	var resp refundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("refund response decode error: %v", err)
	}

	if resp.Code != "10000" {
		return &RefundResult{Success: false, FailureReason: resp.SubMsg}, nil
	}
	return &RefundResult{Success: true, RefundNo: resp.OutRequestNo}, nil
}

func (c *HTTPClient) post(ctx context.Context, params map[string]string) ([]byte, error) {
	sign, err := c.sign(params)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("sign_type", "RSA2")
	form.Set("sign", sign)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway response read error: %v", err)
	}
	return body, nil
}

func (c *HTTPClient) sign(params map[string]string) (string, error) {
	digest := sha256.Sum256([]byte(CanonicalString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("request sign error: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
