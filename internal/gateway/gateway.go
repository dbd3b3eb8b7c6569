package gateway

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

// TradeStatus is the gateway-side trade status enumeration.
type TradeStatus string

const (
	TradeSuccess   TradeStatus = "TRADE_SUCCESS"
	TradeFinished  TradeStatus = "TRADE_FINISHED"
	TradeClosed    TradeStatus = "TRADE_CLOSED"
	TradeWaitBuyer TradeStatus = "WAIT_BUYER_PAY"
)

// Succeeded reports whether the status denotes a settled payment.
func (s TradeStatus) Succeeded() bool {
	return s == TradeSuccess || s == TradeFinished
}

// Closed reports whether the status denotes a closed/abandoned trade.
func (s TradeStatus) Closed() bool {
	return s == TradeClosed
}

// Notification is the parsed shape of an inbound gateway callback, either
// the asynchronous webhook POST or the synchronous return GET. Params keeps
// every raw key/value pair (including sign) for signature verification.
type Notification struct {
	OutTradeNo  string
	TradeNo     string
	TradeStatus TradeStatus
	TotalAmount string
	Params      map[string]string
}

// ParseNotification flattens form/query values into a Notification. Repeated
// keys keep the first value, matching gateway behavior.
func ParseNotification(values url.Values) Notification {
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return Notification{
		OutTradeNo:  params["out_trade_no"],
		TradeNo:     params["trade_no"],
		TradeStatus: TradeStatus(params["trade_status"]),
		TotalAmount: params["total_amount"],
		Params:      params,
	}
}

// QueryResult is the outcome of an active trade-status query.
type QueryResult struct {
	Exists      bool
	TradeStatus TradeStatus
	TradeNo     string
	TotalAmount decimal.Decimal
}

type RefundRequest struct {
	OutTradeNo string
	TradeNo    string
	Amount     decimal.Decimal
	Reason     string
}

type RefundResult struct {
	Success       bool
	RefundNo      string
	FailureReason string
}

// Client is the outbound gateway contract: build a signed request, send it,
// parse the response. Implementations must honor ctx deadlines; a timeout is
// an inconclusive query, never an implicit outcome.
type Client interface {
	QueryTrade(ctx context.Context, outTradeNo string) (*QueryResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// Verifier checks the authenticity of inbound notification parameters
// against the gateway's public key.
type Verifier interface {
	Verify(params map[string]string) error
}
