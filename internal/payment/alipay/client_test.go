package alipay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs-labo46/storefront/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce    sync.Once
	merchantKey *rsa.PrivateKey
	providerKey *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		merchantKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		providerKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return merchantKey, providerKey
}

func privatePEM(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

func publicPEM(t *testing.T, k *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(k)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// ゲートウェイ宛ての通信をテストサーバに向ける
type redirectTransport struct{ target *url.URL }

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	m, p := testKeys(t)
	cfg := Config{
		AppID:     "2021000000000000",
		NotifyURL: "https://shop.example.com/alipay/notify",
		ReturnURL: "https://shop.example.com/alipay/return",
		Timeout:   500 * time.Millisecond,
	}
	if srv != nil {
		target, err := url.Parse(srv.URL)
		require.NoError(t, err)
		cfg.HTTPClient = &http.Client{Transport: redirectTransport{target: target}}
	}
	c, err := NewWithKeys(cfg, privatePEM(m), publicPEM(t, &p.PublicKey))
	require.NoError(t, err)
	return c
}

func rsa2Sign(t *testing.T, k *rsa.PrivateKey, s string) string {
	t.Helper()
	sum := sha256.Sum256([]byte(s))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, sum[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

// プロバイダ側の署名を模した通知（キー昇順で k=v を & で連結）
func signedNotification(t *testing.T, fields map[string]string) map[string]string {
	t.Helper()
	_, p := testKeys(t)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	out := map[string]string{"sign": rsa2Sign(t, p, strings.Join(pairs, "&")), "sign_type": "RSA2"}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func TestVerifyNotification(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()
	fields := signedNotification(t, map[string]string{
		"app_id":       "2021000000000000",
		"out_trade_no": "PAY123",
		"trade_no":     "2024061022001",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "25.50",
	})

	assert.True(t, c.VerifyNotification(ctx, fields))

	t.Run("tampered", func(t *testing.T) {
		f := copyMap(fields)
		f["total_amount"] = "0.01"
		assert.False(t, c.VerifyNotification(ctx, f))
	})
	t.Run("missing sign", func(t *testing.T) {
		f := copyMap(fields)
		delete(f, "sign")
		assert.False(t, c.VerifyNotification(ctx, f))
	})
	t.Run("bad base64", func(t *testing.T) {
		f := copyMap(fields)
		f["sign"] = "%%%not-base64%%%"
		assert.False(t, c.VerifyNotification(ctx, f))
	})
	t.Run("wrong sign type", func(t *testing.T) {
		f := copyMap(fields)
		f["sign_type"] = "RSA"
		assert.False(t, c.VerifyNotification(ctx, f))
	})
	t.Run("signed by another key", func(t *testing.T) {
		m, _ := testKeys(t)
		f := copyMap(fields)
		f["sign"] = rsa2Sign(t, m, "out_trade_no=PAY123")
		assert.False(t, c.VerifyNotification(ctx, f))
	})
	t.Run("empty", func(t *testing.T) {
		assert.False(t, c.VerifyNotification(ctx, nil))
	})
}

func TestParseNotification(t *testing.T) {
	c := newTestClient(t, nil)

	n, err := c.ParseNotification(map[string]string{
		"out_trade_no": "PAY123",
		"trade_no":     "T1",
		"trade_status": "TRADE_CLOSED",
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY123", n.Reference)
	assert.Equal(t, "T1", n.TransactionID)
	assert.Equal(t, payment.TradeClosed, n.Status)

	_, err = c.ParseNotification(map[string]string{"trade_status": "TRADE_SUCCESS"})
	assert.Error(t, err)
}

func TestInitiateRedirect_BuildsSignedURL(t *testing.T) {
	c := newTestClient(t, nil)

	raw, err := c.InitiateRedirect(context.Background(), "PAY123", decimal.RequireFromString("25.5"), "order 1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "alipay.trade.page.pay", q.Get("method"))
	assert.Equal(t, "2021000000000000", q.Get("app_id"))
	assert.Equal(t, "RSA2", q.Get("sign_type"))
	assert.NotEmpty(t, q.Get("sign"))
	assert.Equal(t, "https://shop.example.com/alipay/notify", q.Get("notify_url"))
	assert.Equal(t, "https://shop.example.com/alipay/return", q.Get("return_url"))

	biz := q.Get("biz_content")
	assert.Contains(t, biz, `"out_trade_no":"PAY123"`)
	assert.Contains(t, biz, `"total_amount":"25.50"`)
	assert.Contains(t, biz, `"product_code":"FAST_INSTANT_TRADE_PAY"`)
}

func TestInitiateRedirect_CanceledContext(t *testing.T) {
	c := newTestClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.InitiateRedirect(ctx, "PAY123", decimal.NewFromInt(1), "x")
	assert.True(t, errors.Is(err, payment.ErrProvider))
}

// 応答をプロバイダ鍵で署名して返すテストサーバ
func queryServer(t *testing.T, respJSON string) *httptest.Server {
	t.Helper()
	_, p := testKeys(t)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "alipay.trade.query", r.Form.Get("method"))
		assert.Contains(t, r.Form.Get("biz_content"), `"out_trade_no":"PAY123"`)
		assert.NotEmpty(t, r.Form.Get("sign"))

		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		_, _ = w.Write([]byte(`{"alipay_trade_query_response":` + respJSON + `,"sign":"` + rsa2Sign(t, p, respJSON) + `"}`))
	}))
}

func TestQueryStatus_Success(t *testing.T) {
	srv := queryServer(t, `{"code":"10000","msg":"Success","trade_no":"2024061022001","out_trade_no":"PAY123","trade_status":"TRADE_SUCCESS","total_amount":"25.50"}`)
	defer srv.Close()
	c := newTestClient(t, srv)

	q, err := c.QueryStatus(context.Background(), "PAY123")
	require.NoError(t, err)
	assert.Equal(t, payment.TradeSuccess, q.Status)
	assert.Equal(t, "2024061022001", q.TransactionID)
	assert.Equal(t, "PAY123", q.Reference)
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("25.50")))
}

func TestQueryStatus_BusinessError(t *testing.T) {
	srv := queryServer(t, `{"code":"40004","msg":"Business Failed","sub_code":"ACQ.TRADE_NOT_EXIST","sub_msg":"trade not exist"}`)
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.QueryStatus(context.Background(), "PAY123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrProvider))
}

func TestQueryStatus_BadResponseSignature(t *testing.T) {
	_, p := testKeys(t)
	respJSON := `{"code":"10000","msg":"Success","out_trade_no":"PAY123","trade_status":"TRADE_SUCCESS"}`
	forged := rsa2Sign(t, p, `{"code":"10000"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alipay_trade_query_response":` + respJSON + `,"sign":"` + forged + `"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.QueryStatus(context.Background(), "PAY123")
	assert.True(t, errors.Is(err, payment.ErrProvider))
}

func TestQueryStatus_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	start := time.Now()
	_, err := c.QueryStatus(context.Background(), "PAY123")
	assert.True(t, errors.Is(err, payment.ErrProvider))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestQueryStatus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.QueryStatus(context.Background(), "PAY123")
	assert.True(t, errors.Is(err, payment.ErrProvider))
}

func TestNew_LoadsKeysFromFiles(t *testing.T) {
	m, p := testKeys(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "app_private.pem")
	pubPath := filepath.Join(dir, "alipay_public.pem")
	require.NoError(t, os.WriteFile(privPath, []byte(privatePEM(m)), 0o600))
	require.NoError(t, os.WriteFile(pubPath, []byte(publicPEM(t, &p.PublicKey)+"\n"), 0o600))

	c, err := New(Config{AppID: "app", PrivateKeyPath: privPath, PublicKeyPath: pubPath})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, c.timeout)

	_, err = New(Config{AppID: "app", PrivateKeyPath: filepath.Join(dir, "missing"), PublicKeyPath: pubPath})
	assert.Error(t, err)
}

func TestNewWithKeys_Rejects(t *testing.T) {
	m, p := testKeys(t)

	_, err := NewWithKeys(Config{}, privatePEM(m), publicPEM(t, &p.PublicKey))
	assert.Error(t, err)

	_, err = NewWithKeys(Config{AppID: "app"}, "", publicPEM(t, &p.PublicKey))
	assert.Error(t, err)

	_, err = NewWithKeys(Config{AppID: "app"}, "not a key", publicPEM(t, &p.PublicKey))
	assert.Error(t, err)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
