// Package alipay は Alipay（ページ支払い）のアダプタ。署名と通信は smartwalle/alipay に任せる。
package alipay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/payment"

	"github.com/shopspring/decimal"
	sdk "github.com/smartwalle/alipay/v3"
)

const (
	productCode  = "FAST_INSTANT_TRADE_PAY"
	signTypeRSA2 = "RSA2"
)

// Client は起動時に一度だけ作り、以後は読み取り専用で共有する。
type Client struct {
	sdk       *sdk.Client
	notifyURL string
	returnURL string
	timeout   time.Duration
}

var (
	_ payment.RedirectGateway = (*Client)(nil)
	_ payment.Reconcilable    = (*Client)(nil)
)

// New は鍵ファイルを読んでクライアントを作る。
func New(cfg Config) (*Client, error) {
	priv, pub, err := cfg.readKeys()
	if err != nil {
		return nil, err
	}
	return NewWithKeys(cfg, priv, pub)
}

// NewWithKeys は鍵の中身（PEMかbase64）を直接受け取る。
func NewWithKeys(cfg Config, privateKey, publicKey string) (*Client, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay app id is required")
	}
	if privateKey == "" || publicKey == "" {
		return nil, errors.New("alipay keys are required")
	}

	c, err := sdk.New(cfg.AppID, privateKey, cfg.Production, sdk.WithHTTPClient(cfg.httpClient()))
	if err != nil {
		return nil, fmt.Errorf("alipay client: %w", err)
	}
	if err := c.LoadAliPayPublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	return &Client{
		sdk:       c,
		notifyURL: cfg.NotifyURL,
		returnURL: cfg.ReturnURL,
		timeout:   cfg.timeout(),
	}, nil
}

func (c *Client) Method() model.PaymentMethod {
	return model.PaymentMethodAlipay
}

// InitiateRedirect は署名済みのページ支払いURLを返す。状態は変えない。
func (c *Client) InitiateRedirect(ctx context.Context, reference string, amount decimal.Decimal, subject string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", payment.ProviderError("%v", err)
	}
	u, err := c.sdk.TradePagePay(sdk.TradePagePay{
		Trade: sdk.Trade{
			NotifyURL:   c.notifyURL,
			ReturnURL:   c.returnURL,
			Subject:     subject,
			OutTradeNo:  reference,
			TotalAmount: amount.StringFixed(2),
			ProductCode: productCode,
		},
	})
	if err != nil {
		return "", payment.ProviderError("page pay: %v", err)
	}
	return u.String(), nil
}

// VerifyNotification は RSA2 の署名だけを受け付ける。
func (c *Client) VerifyNotification(ctx context.Context, fields map[string]string) bool {
	if len(fields) == 0 || fields["sign"] == "" {
		return false
	}
	if st := fields["sign_type"]; st != "" && st != signTypeRSA2 {
		return false
	}
	values := make(url.Values, len(fields))
	for k, v := range fields {
		values.Set(k, v)
	}
	return c.sdk.VerifySign(ctx, values) == nil
}

func (c *Client) ParseNotification(fields map[string]string) (payment.Notification, error) {
	ref := fields["out_trade_no"]
	if ref == "" {
		return payment.Notification{}, errors.New("out_trade_no missing")
	}
	return payment.Notification{
		Reference:     ref,
		TransactionID: fields["trade_no"],
		Status:        payment.TradeStatus(fields["trade_status"]),
	}, nil
}

// QueryStatus はプロバイダに取引状態を問い合わせる（リトライしない）。
// 応答署名の検証はSDK側で行われる。
func (c *Client) QueryStatus(ctx context.Context, reference string) (payment.TradeQuery, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rsp, err := c.sdk.TradeQuery(ctx, sdk.TradeQuery{OutTradeNo: reference})
	if err != nil {
		return payment.TradeQuery{}, payment.ProviderError("trade query: %v", err)
	}
	if rsp == nil {
		return payment.TradeQuery{}, payment.ProviderError("trade query: empty response")
	}
	if rsp.Code != sdk.CodeSuccess {
		return payment.TradeQuery{}, payment.ProviderError("code=%s sub_code=%s msg=%s", rsp.Code, rsp.SubCode, rsp.SubMsg)
	}

	amount, _ := decimal.NewFromString(rsp.TotalAmount)
	return payment.TradeQuery{
		Reference:     rsp.OutTradeNo,
		TransactionID: rsp.TradeNo,
		Status:        payment.TradeStatus(rsp.TradeStatus),
		Amount:        amount,
	}, nil
}
