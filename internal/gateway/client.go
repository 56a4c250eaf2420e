package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrTransport marks a network/timeout failure talking to the provider,
// as opposed to the provider answering with a decline.
var ErrTransport = errors.New("gateway transport error")

// CallLogger records raw request/response payloads of every outbound
// provider call before the result is consumed.
type CallLogger interface {
	SaveGatewayCall(ctx context.Context, log entities.GatewayLog) error
}

type Config struct {
	MerchantID  string
	SignKey     string
	APIKey      string
	RefundURL   string
	CancelPwd   string
	CallTimeout time.Duration
}

// Client performs the outbound legs of a provider conversation: the
// two-step approve handshake and refunds.
type Client struct {
	provider *Provider
	config   Config
	client   *resty.Client
	logs     CallLogger
}

func NewClient(provider *Provider, config Config, logs CallLogger) *Client {
	client := resty.New()

	client.
		SetTimeout(config.CallTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{
		provider: provider,
		config:   config,
		client:   client,
		logs:     logs,
	}
}

func (c *Client) Provider() *Provider {
	return c.provider
}

// Approve performs the second handshake leg against the callback-supplied
// auth URL. A non-nil error always wraps ErrTransport; a provider decline
// comes back as a Result with a failing code.
func (c *Client) Approve(ctx context.Context, authURL, authToken, orderNumber string) (Result, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	form := map[string]string{
		"mid":          c.config.MerchantID,
		"authToken":    authToken,
		"timestamp":    timestamp,
		"signature":    approveSignature(authToken, timestamp),
		"verification": approveVerification(authToken, c.config.SignKey, timestamp),
		"charset":      "UTF-8",
		"format":       "JSON",
	}

	c.logCall(ctx, orderNumber, "APPROVE_REQUEST", authURL, form, "", 0, true, "")

	response, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(authURL)

	if err != nil {
		c.logCall(ctx, orderNumber, "APPROVE_RESPONSE", authURL, nil, "", 0, false, err.Error())

		return Result{}, fmt.Errorf("%w: approve call for order %s: %v", ErrTransport, orderNumber, err)
	}

	body := response.Body()
	c.logCall(ctx, orderNumber, "APPROVE_RESPONSE", authURL, nil, string(body), response.StatusCode(), response.IsSuccess(), "")

	result := Result{
		Provider:    c.provider.Name,
		OrderNumber: orderNumber,
	}

	if !response.IsSuccess() {
		result.ResultCode = "9999"
		result.ResultMessage = fmt.Sprintf("approve rejected with status %s", response.Status())

		return result, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		zap.L().Info("cannot decode approve response", zap.String("order", orderNumber), zap.Error(err))
	}

	result.ResultCode = firstAny(parsed, "resultCode", "ResultCode", "code")
	if result.ResultCode == "" {
		result.ResultCode = "0000"
	}

	result.ResultMessage = firstAny(parsed, "resultMsg", "ResultMsg", "message")
	result.TID = NewTID(firstAny(parsed, fieldCandidates[c.provider.Name][fieldTID]...))

	return result, nil
}

// Refund asks the provider to void a settled transaction.
func (c *Client) Refund(ctx context.Context, tid, reason, clientIP string) (Result, error) {
	data := map[string]string{
		"tid": tid,
		"msg": reason,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return Result{}, fmt.Errorf("cannot encode refund data: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")

	request := map[string]any{
		"mid":       c.config.MerchantID,
		"type":      "refund",
		"timestamp": timestamp,
		"clientIp":  clientIP,
		"hashData":  refundHash(c.config.APIKey, c.config.MerchantID, timestamp, string(dataJSON)),
		"data":      data,
	}

	c.logCall(ctx, tid, "REFUND_REQUEST", c.config.RefundURL, request, "", 0, true, "")

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		Post(c.config.RefundURL)

	if err != nil {
		c.logCall(ctx, tid, "REFUND_RESPONSE", c.config.RefundURL, nil, "", 0, false, err.Error())

		return Result{}, fmt.Errorf("%w: refund call for tid %s: %v", ErrTransport, tid, err)
	}

	body := response.Body()
	c.logCall(ctx, tid, "REFUND_RESPONSE", c.config.RefundURL, nil, string(body), response.StatusCode(), response.IsSuccess(), "")

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		zap.L().Info("cannot decode refund response", zap.String("tid", tid), zap.Error(err))
	}

	result := Result{
		Provider:      c.provider.Name,
		ResultCode:    firstAny(parsed, "resultCode", "ResultCode", "code"),
		ResultMessage: firstAny(parsed, "resultMsg", "ResultMsg", "message"),
		TID:           TID{Value: tid},
	}

	if result.ResultCode == "" {
		result.ResultCode = "9999"
		result.ResultMessage = "no result code in refund response"
	}

	return result, nil
}

func (c *Client) logCall(ctx context.Context, orderNumber, requestType, requestURL string, requestData any, responseData string, httpStatus int, success bool, errorMessage string) {
	log := entities.GatewayLog{
		OrderNumber:  orderNumber,
		RequestType:  requestType,
		Provider:     c.provider.Name,
		RequestURL:   requestURL,
		ResponseData: responseData,
		HTTPStatus:   httpStatus,
		Success:      success,
		ErrorMessage: errorMessage,
	}

	if requestData != nil {
		encoded, err := json.Marshal(requestData)
		if err != nil {
			log.RequestData = fmt.Sprintf("JSON_ERROR: %v", err)
		} else {
			log.RequestData = string(encoded)
		}
	}

	if err := c.logs.SaveGatewayCall(ctx, log); err != nil {
		zap.L().Info("error saving gateway call log", zap.String("order", orderNumber), zap.Error(err))
	}
}

func firstAny(params map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := params[key]; ok && value != nil {
			if s := fmt.Sprint(value); s != "" {
				return s
			}
		}
	}

	return ""
}
