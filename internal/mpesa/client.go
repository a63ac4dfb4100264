package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/herderhub/herderhub-api/internal/metrics"
	"github.com/herderhub/herderhub-api/internal/msisdn"
)

const (
	SandboxURL    = "https://sandbox.safaricom.co.ke"
	ProductionURL = "https://api.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	maxAccountReference = 12
	maxDescription      = 13
)

// BaseURLFor picks the Daraja host for an environment name.
func BaseURLFor(env string) string {
	if env == "production" || env == "prod" {
		return ProductionURL
	}
	return SandboxURL
}

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithClock(now func() time.Time) Option  { return func(c *Client) { c.now = now } }
func WithLogger(l *slog.Logger) Option        { return func(c *Client) { c.logger = l } }

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type PushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	Description      string
}

// PushResponse is Daraja's synchronous acknowledgement of an STK push.
type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// AccessToken exchanges the consumer key/secret for a bearer token. Tokens are
// not cached; every push fetches a fresh one.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	start := time.Now()
	defer func() { metrics.GatewayLatency.WithLabelValues("oauth").Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Authorization", "Basic "+basicCredentials(c.cfg.ConsumerKey, c.cfg.ConsumerSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "mpesa oauth rejected", "status", resp.StatusCode, "body", string(body))
		return "", &AuthError{Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("decode token: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode, Err: errors.New("empty access token")}
	}
	return tok.AccessToken, nil
}

// InitiatePush sends an STK push (Lipa Na M-Pesa Online) to the payer's
// phone. The returned ids correlate the asynchronous callback.
func (c *Client) InitiatePush(ctx context.Context, pr PushRequest) (PushResponse, error) {
	phone, err := msisdn.Normalize(pr.PhoneNumber)
	if err != nil {
		return PushResponse{}, &RequestError{Code: CodeInvalidPhone, Message: "Invalid PhoneNumber", Err: err}
	}
	if pr.Amount <= 0 {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "Invalid Amount"}
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return PushResponse{}, err
	}

	ts := Timestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            pr.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(pr.AccountReference, maxAccountReference),
		TransactionDesc:   truncate(pr.Description, maxDescription),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "encode request", Err: err}
	}

	start := time.Now()
	defer func() { metrics.GatewayLatency.WithLabelValues("stkpush").Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+pushPath, bytes.NewReader(buf))
	if err != nil {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "payment service unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		c.logger.WarnContext(ctx, "mpesa stk push rejected",
			"status", resp.StatusCode, "error_code", eb.ErrorCode, "body", string(body))
		msg := eb.ErrorMessage
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return PushResponse{}, &RequestError{
			Code:    classify(eb.ErrorCode, eb.ErrorMessage),
			Message: msg,
			Status:  resp.StatusCode,
			Raw:     string(body),
		}
	}

	var out PushResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "unreadable provider response", Status: resp.StatusCode, Raw: string(body), Err: err}
	}
	if out.ResponseCode != "0" {
		c.logger.WarnContext(ctx, "mpesa stk push not accepted", "response_code", out.ResponseCode, "body", string(body))
		return PushResponse{}, &RequestError{Code: CodeDeclined, Message: out.ResponseDescription, Status: resp.StatusCode, Raw: string(body)}
	}
	if out.MerchantRequestID == "" || out.CheckoutRequestID == "" {
		return PushResponse{}, &RequestError{Code: CodeGeneric, Message: "missing correlation ids", Status: resp.StatusCode, Raw: string(body)}
	}
	return out, nil
}

// Password is base64(shortcode + passkey + timestamp) as Daraja expects.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// Timestamp formats t as YYYYMMDDHHmmss in Nairobi time.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format(timestampLayout)
}

const timestampLayout = "20060102150405"

var nairobi = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*3600)
	}
	return loc
}()

func basicCredentials(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
