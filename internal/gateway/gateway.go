package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	ProviderInipay  = "INIPAY"
	ProviderNicepay = "NICEPAY"
)

const temporaryTIDPrefix = "TEMP_TID_"

// TID is a gateway transaction id. Temporary ids are synthesized when a
// callback omits one; they are never authoritative and must not be
// persisted into the durable ledger as real ids.
type TID struct {
	Value     string
	Temporary bool
}

func (t TID) String() string {
	return t.Value
}

func (t TID) Authoritative() bool {
	return !t.Temporary && t.Value != ""
}

func NewTID(value string) TID {
	if value == "" || strings.HasPrefix(value, temporaryTIDPrefix) {
		return NewTemporaryTID()
	}

	return TID{Value: value}
}

func NewTemporaryTID() TID {
	return TID{
		Value:     temporaryTIDPrefix + uuid.NewString(),
		Temporary: true,
	}
}

// Result is the canonical form of one provider callback, whatever field
// names it arrived under.
type Result struct {
	Provider      string
	OrderNumber   string
	ResultCode    string
	ResultMessage string
	TID           TID
	Amount        int64
	AuthURL       string
	AuthToken     string
}

type field string

const (
	fieldOrderNumber   field = "orderNumber"
	fieldResultCode    field = "resultCode"
	fieldResultMessage field = "resultMessage"
	fieldTID           field = "tid"
	fieldAmount        field = "amount"
	fieldAuthURL       field = "authUrl"
	fieldAuthToken     field = "authToken"
)

// Every provider names the same logical fields differently, sometimes
// differently between call types of the same provider. Adding a provider
// is a data change here, not a code change.
var fieldCandidates = map[string]map[field][]string{
	ProviderInipay: {
		fieldOrderNumber:   {"orderNumber", "oid", "P_OID", "MOID"},
		fieldResultCode:    {"resultCode", "P_STATUS"},
		fieldResultMessage: {"resultMsg", "P_RMESG1"},
		fieldTID:           {"tid", "P_TID", "TID", "transactionId"},
		fieldAmount:        {"price", "amt", "amount"},
		fieldAuthURL:       {"authUrl"},
		fieldAuthToken:     {"authToken"},
	},
	ProviderNicepay: {
		fieldOrderNumber:   {"Moid", "MOID", "moid", "OrderNo", "orderNo"},
		fieldResultCode:    {"ResultCode", "AuthResultCode", "resultCode"},
		fieldResultMessage: {"ResultMsg", "AuthResultMsg", "resultMsg"},
		fieldTID:           {"TID", "tid", "Tid", "TxTid"},
		fieldAmount:        {"Amt", "amt", "Amount"},
		fieldAuthURL:       {"NextAppURL"},
		fieldAuthToken:     {"AuthToken"},
	},
}

// Provider bundles one gateway's field naming and success predicates.
type Provider struct {
	Name         string
	successCodes map[string]struct{}
	refundCodes  map[string]struct{}
}

func NewProvider(name string, successCodes, refundCodes []string) *Provider {
	p := &Provider{
		Name:         name,
		successCodes: make(map[string]struct{}, len(successCodes)),
		refundCodes:  make(map[string]struct{}, len(refundCodes)),
	}

	for _, code := range successCodes {
		p.successCodes[code] = struct{}{}
	}
	for _, code := range refundCodes {
		p.refundCodes[code] = struct{}{}
	}

	return p
}

func (p *Provider) Success(code string) bool {
	_, ok := p.successCodes[code]
	return ok
}

func (p *Provider) RefundSuccess(code string) bool {
	_, ok := p.refundCodes[code]
	return ok
}

// Inipay accepts exactly one success code; Nicepay a small enumerated set.
func Inipay() *Provider {
	return NewProvider(ProviderInipay, []string{"0000"}, []string{"00"})
}

func Nicepay() *Provider {
	return NewProvider(ProviderNicepay, []string{"0000", "2001", "2211"}, []string{"0000", "2001"})
}

// Parse normalizes a raw provider payload into a Result. An unknown
// provider or a payload with no recognizable order number is an error.
func Parse(provider string, params map[string]string) (Result, error) {
	candidates, ok := fieldCandidates[provider]
	if !ok {
		return Result{}, fmt.Errorf("unknown payment provider: %s", provider)
	}

	orderNumber := extract(params, candidates[fieldOrderNumber])
	if orderNumber == "" {
		return Result{}, fmt.Errorf("no order number in %s payload", provider)
	}

	result := Result{
		Provider:      provider,
		OrderNumber:   orderNumber,
		ResultCode:    extract(params, candidates[fieldResultCode]),
		ResultMessage: extract(params, candidates[fieldResultMessage]),
		TID:           NewTID(extract(params, candidates[fieldTID])),
		AuthURL:       extract(params, candidates[fieldAuthURL]),
		AuthToken:     extract(params, candidates[fieldAuthToken]),
	}

	if rawAmount := extract(params, candidates[fieldAmount]); rawAmount != "" {
		amount, err := strconv.ParseInt(rawAmount, 10, 64)
		if err != nil {
			return Result{}, fmt.Errorf("cannot parse amount %q: %w", rawAmount, err)
		}

		result.Amount = amount
	}

	return result, nil
}

func extract(params map[string]string, keys []string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(params[key]); value != "" {
			return value
		}
	}

	return ""
}
