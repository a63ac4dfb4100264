package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/herderhub/herderhub-api/internal/msisdn"
)

var ErrMalformedCallback = errors.New("mpesa: malformed stk callback")

// CallbackResult is the flattened stkCallback body. Metadata fields are zero
// when the provider omitted them, which it does for every non-zero result.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	Amount          int64
	ReceiptNumber   string
	TransactionDate *time.Time
	PhoneNumber     string
}

func (r CallbackResult) Succeeded() bool { return r.ResultCode == ResultSuccess }

// HasPayer reports whether the payer's phone and amount are both known.
func (r CallbackResult) HasPayer() bool { return r.PhoneNumber != "" && r.Amount > 0 }

// Ack is the body Daraja expects back from the callback URL.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}

type callbackEnvelope struct {
	Body *struct {
		StkCallback *struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// DecodeCallback parses a raw callback body.
func DecodeCallback(body []byte) (CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return CallbackResult{}, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}
	cb := env.Body.StkCallback
	code, err := cb.ResultCode.Int64()
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: ResultCode %q", ErrMalformedCallback, cb.ResultCode)
	}

	out := CallbackResult{
		MerchantRequestID: strings.TrimSpace(cb.MerchantRequestID),
		CheckoutRequestID: strings.TrimSpace(cb.CheckoutRequestID),
		ResultCode:        int(code),
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return out, nil
	}

	for _, it := range cb.CallbackMetadata.Item {
		switch it.Name {
		case "Amount":
			// Fractional amounts are left at zero so they never match by
			// phone and amount.
			if f, ok := numberValue(it.Value); ok && f > 0 && f == math.Trunc(f) {
				out.Amount = int64(f)
			}
		case "MpesaReceiptNumber":
			out.ReceiptNumber = stringValue(it.Value)
		case "TransactionDate":
			if t, err := time.ParseInLocation(timestampLayout, stringValue(it.Value), nairobi); err == nil {
				out.TransactionDate = &t
			}
		case "PhoneNumber":
			if p, err := msisdn.Normalize(stringValue(it.Value)); err == nil {
				out.PhoneNumber = p
			}
		}
	}
	return out, nil
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := json.Number(n).Float64()
		return f, err == nil
	}
	return 0, false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case json.Number:
		return s.String()
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
