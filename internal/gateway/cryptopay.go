package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"remnabot/internal/config"
	"remnabot/internal/entities"
)

const (
	CryptoPayName = "cryptopay"

	cryptoPaySignatureHeader = "crypto-pay-api-signature"
	maxWebhookBody           = 1 << 20
)

// CryptoPay issues invoices through the Crypto Pay API (@CryptoBot).
type CryptoPay struct {
	token   string
	baseURL string
	asset   string
	client  *http.Client
}

func NewCryptoPay(cfg config.CryptoPayConfig) *CryptoPay {
	return &CryptoPay{
		token:   cfg.Token,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		asset:   cfg.Asset,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *CryptoPay) Name() string { return CryptoPayName }

// Supports reports fiat currencies; stars cannot be paid in crypto.
func (c *CryptoPay) Supports(currency string) bool {
	return currency != "" && currency != StarsCurrency
}

type cryptoPayResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

type cryptoPayInvoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	Payload       string `json:"payload"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	PayURL        string `json:"pay_url"`
}

type cryptoPayUpdate struct {
	UpdateID   int64            `json:"update_id"`
	UpdateType string           `json:"update_type"`
	Payload    cryptoPayInvoice `json:"payload"`
}

// FormatAmount renders minor units as a decimal with two places.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func (c *CryptoPay) call(ctx context.Context, method string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "cryptopay %s", method)
	}
	defer resp.Body.Close()

	var envelope cryptoPayResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "decode cryptopay %s (HTTP %d)", method, resp.StatusCode)
	}
	if !envelope.OK {
		name := "unknown"
		if envelope.Error != nil {
			name = envelope.Error.Name
		}
		return errors.Errorf("cryptopay %s: %s", method, name)
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *CryptoPay) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if !c.Supports(req.Currency) {
		return nil, errors.Errorf("cryptopay cannot charge %s", req.Currency)
	}

	body := map[string]any{
		"currency_type":   "fiat",
		"fiat":            req.Currency,
		"amount":          FormatAmount(req.Amount),
		"accepted_assets": c.asset,
		"description":     req.Description,
		"payload":         invoicePayload(req.BotID, req.PaymentID),
		"allow_anonymous": false,
	}

	var inv cryptoPayInvoice
	if err := c.call(ctx, "createInvoice", body, &inv); err != nil {
		return nil, err
	}

	payURL := inv.BotInvoiceURL
	if payURL == "" {
		payURL = inv.PayURL
	}
	return &Invoice{
		ExternalID: strconv.FormatInt(inv.InvoiceID, 10),
		PayURL:     payURL,
	}, nil
}

// invoicePayload ties an invoice to its tenant. One Crypto Pay app serves
// every bot, so its webhook learns the bot from here.
func invoicePayload(botID int64, paymentID uuid.UUID) string {
	return strconv.FormatInt(botID, 10) + ":" + paymentID.String()
}

func parseInvoicePayload(payload string) (int64, uuid.UUID) {
	bot, id, found := strings.Cut(payload, ":")
	if !found {
		bot, id = "", payload
	}
	botID, _ := strconv.ParseInt(bot, 10, 64)
	paymentID, err := uuid.Parse(id)
	if err != nil {
		paymentID = uuid.Nil
	}
	return botID, paymentID
}

// Sign computes the webhook signature for body.
func (c *CryptoPay) Sign(body []byte) string {
	secret := sha256.Sum256([]byte(c.token))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *CryptoPay) ParseWebhook(r *http.Request) (*WebhookEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, errors.Wrap(err, "read webhook body")
	}

	got, err := hex.DecodeString(r.Header.Get(cryptoPaySignatureHeader))
	if err != nil || len(got) == 0 {
		return nil, entities.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(c.Sign(body))
	if !hmac.Equal(got, want) {
		return nil, entities.ErrInvalidSignature
	}

	var upd cryptoPayUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return nil, errors.Wrap(entities.ErrInvalidInput, "decode cryptopay update")
	}

	event := &WebhookEvent{
		Gateway:    CryptoPayName,
		ExternalID: strconv.FormatInt(upd.Payload.InvoiceID, 10),
	}
	event.BotID, event.PaymentID = parseInvoicePayload(upd.Payload.Payload)

	switch {
	case upd.UpdateType == "invoice_paid" || upd.Payload.Status == "paid":
		event.Status = entities.PaymentPaid
	case upd.Payload.Status == "expired":
		event.Status = entities.PaymentExpired
	default:
		return nil, errors.Wrapf(entities.ErrInvalidInput, "unsupported cryptopay update %q", upd.UpdateType)
	}
	return event, nil
}
