package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"
	"github.com/rs-labo46/storefront/internal/obs"
	"github.com/rs-labo46/storefront/internal/payment"
	repo "github.com/rs-labo46/storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 終端遷移に勝ったときだけ呼ばれる
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev model.PaymentEvent) error
}

// 終端ステータスだけを持つキャッシュ（終端は変わらないので安全）
type PaymentStatusCache interface {
	Get(ctx context.Context, outTradeNo string) (model.PaymentStatus, bool, error)
	Set(ctx context.Context, outTradeNo string, status model.PaymentStatus) error
}

type PaymentOptions struct {
	Publisher       PaymentEventPublisher // nilなら発行しない
	Cache           PaymentStatusCache    // nilならキャッシュしない
	ProviderTimeout time.Duration
	ReferencePrefix string
}

// 支払いの状態機械。PENDING → SUCCESS | FAILED、終端からは動かない。
// 通知（push）と照会（pull）はどちらも applyOutcome を通る。
type PaymentUsecase struct {
	payments  repo.PaymentRepository
	gateways  *payment.Registry
	publisher PaymentEventPublisher
	cache     PaymentStatusCache
	timeout   time.Duration
	prefix    string
	now       func() time.Time
}

func NewPaymentUsecase(payments repo.PaymentRepository, gateways *payment.Registry, opts PaymentOptions) *PaymentUsecase {
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PaymentUsecase{
		payments:  payments,
		gateways:  gateways,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		timeout:   timeout,
		prefix:    opts.ReferencePrefix,
		now:       time.Now,
	}
}

type ProcessPaymentInput struct {
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type ProcessPaymentOutput struct {
	Payment model.Payment `json:"payment"`
	// 画面遷移型のときだけ入る（ブラウザを遷移させるURL）
	RedirectURL string `json:"redirect_url,omitempty"`
}

type ReturnOutput struct {
	OutTradeNo string              `json:"out_trade_no"`
	Status     model.PaymentStatus `json:"status"`
	Message    string              `json:"message"`
}

func (u *PaymentUsecase) ProcessPayment(ctx context.Context, in ProcessPaymentInput) (ProcessPaymentOutput, error) {
	if in.OrderID <= 0 {
		return ProcessPaymentOutput{}, badRequest("invalid order_id")
	}
	if !in.Amount.IsPositive() {
		return ProcessPaymentOutput{}, badRequest("amount must be > 0")
	}
	method := model.PaymentMethod(in.PaymentMethod)
	g, ok := u.gateways.Get(method)
	if !ok {
		return ProcessPaymentOutput{}, badRequest("unsupported payment method")
	}

	now := u.now()
	p, err := u.payments.Create(ctx, model.Payment{
		OrderID:       in.OrderID,
		Amount:        in.Amount.Round(2),
		Status:        model.PaymentStatusPending,
		PaymentMethod: method,
		OutTradeNo:    payment.NewReference(u.prefix, now),
		CreateTime:    now,
		UpdateTime:    now,
	})
	if err != nil {
		return ProcessPaymentOutput{}, dbError(err)
	}
	log := obs.Logger.With("payment_id", p.ID, "out_trade_no", p.OutTradeNo, "method", method)
	subject := "Order " + strconv.FormatInt(in.OrderID, 10)

	pctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	switch gw := g.(type) {
	case payment.RedirectGateway:
		redirectURL, err := gw.InitiateRedirect(pctx, p.OutTradeNo, p.Amount, subject)
		if err != nil {
			log.WarnContext(ctx, "initiate redirect failed", "err", err)
			return ProcessPaymentOutput{}, u.failOnProvider(ctx, p, err)
		}
		// 状態はPENDINGのまま（確定は通知か照会で）
		return ProcessPaymentOutput{Payment: p, RedirectURL: redirectURL}, nil

	case payment.ChargeGateway:
		txID, err := gw.Charge(pctx, p.OutTradeNo, p.Amount, subject)
		if err != nil {
			log.WarnContext(ctx, "charge failed", "err", err)
			return ProcessPaymentOutput{}, u.failOnProvider(ctx, p, err)
		}
		cur, won, err := u.applyOutcome(ctx, p, model.PaymentStatusSuccess, txID)
		if err != nil {
			return ProcessPaymentOutput{}, err
		}
		if !won && cur.Status != model.PaymentStatusSuccess {
			return ProcessPaymentOutput{}, wrapErr(ErrConflict, "payment already settled as "+string(cur.Status))
		}
		return ProcessPaymentOutput{Payment: cur}, nil

	default:
		return ProcessPaymentOutput{}, badRequest("unsupported payment method")
	}
}

// プロバイダ失敗時はFAILEDにして記録は残す
func (u *PaymentUsecase) failOnProvider(ctx context.Context, p model.Payment, cause error) error {
	if _, _, err := u.applyOutcome(ctx, p, model.PaymentStatusFailed, ""); err != nil {
		return err
	}
	return &HTTPError{
		Status:  http.StatusBadGateway,
		Message: "payment provider error",
		Err:     errors.Join(ErrProviderError, cause),
	}
}

// HandleNotification はプロバイダからの通知を処理する。
// false のときはプロバイダに "fail" を返し、再送してもらう。
func (u *PaymentUsecase) HandleNotification(ctx context.Context, method model.PaymentMethod, fields map[string]string) bool {
	rc, ok := u.gateways.Reconcilable(method)
	if !ok {
		obs.Logger.WarnContext(ctx, "notification for unsupported method", "method", method)
		return false
	}
	if !rc.VerifyNotification(ctx, fields) {
		obs.Logger.WarnContext(ctx, "notification signature invalid", "method", method)
		return false
	}
	n, err := rc.ParseNotification(fields)
	if err != nil {
		obs.Logger.WarnContext(ctx, "notification malformed", "method", method, "err", err)
		return false
	}
	log := obs.Logger.With("out_trade_no", n.Reference, "trade_status", n.Status)

	p, err := u.payments.FindByOutTradeNo(ctx, n.Reference)
	if errors.Is(err, repo.ErrNotFound) {
		// 知らない参照番号は受領だけ返す
		log.WarnContext(ctx, "notification for unknown payment")
		return true
	}
	if err != nil {
		log.ErrorContext(ctx, "notification lookup failed", "err", err)
		return false
	}

	target, ok := n.Status.Outcome()
	if !ok {
		return true
	}
	// 成功なのに取引番号が無い通知は壊れている。確定せずに再送を待つ
	if target == model.PaymentStatusSuccess && n.TransactionID == "" {
		log.WarnContext(ctx, "success notification without trade_no")
		return false
	}
	if _, _, err := u.applyOutcome(ctx, p, target, n.TransactionID); err != nil {
		log.ErrorContext(ctx, "notification apply failed", "err", err)
		return false
	}
	return true
}

// ConfirmReturn はブラウザの戻りURLを処理する。
// 戻りURLのパラメータは信用せず、必ずプロバイダに照会する。
func (u *PaymentUsecase) ConfirmReturn(ctx context.Context, method model.PaymentMethod, fields map[string]string) (ReturnOutput, error) {
	rc, ok := u.gateways.Reconcilable(method)
	if !ok {
		return ReturnOutput{}, badRequest("unsupported payment method")
	}
	if !rc.VerifyNotification(ctx, fields) {
		return ReturnOutput{}, wrapErr(ErrInvalidSignature, "verifying failure")
	}
	n, err := rc.ParseNotification(fields)
	if err != nil {
		return ReturnOutput{}, badRequest("out_trade_no required")
	}

	// 終端がキャッシュにあれば照会しない
	if st, ok := u.cachedStatus(ctx, n.Reference); ok {
		return returnOutput(n.Reference, st), nil
	}

	p, err := u.payments.FindByOutTradeNo(ctx, n.Reference)
	if errors.Is(err, repo.ErrNotFound) {
		return ReturnOutput{}, wrapErr(ErrPaymentNotFound, "payment not found")
	}
	if err != nil {
		return ReturnOutput{}, dbError(err)
	}

	cur, err := u.reconcile(ctx, rc, p)
	if err != nil {
		return ReturnOutput{}, err
	}
	return returnOutput(cur.OutTradeNo, cur.Status), nil
}

// SyncPaymentStatus は支払いIDを指定してプロバイダに照会し、結果を反映する。
func (u *PaymentUsecase) SyncPaymentStatus(ctx context.Context, paymentID int64) (model.Payment, error) {
	p, err := u.GetPayment(ctx, paymentID)
	if err != nil {
		return model.Payment{}, err
	}
	rc, ok := u.gateways.Reconcilable(p.PaymentMethod)
	if !ok {
		// 照会できない方式は記録をそのまま返す
		return p, nil
	}
	return u.reconcile(ctx, rc, p)
}

func (u *PaymentUsecase) GetPayment(ctx context.Context, paymentID int64) (model.Payment, error) {
	if paymentID <= 0 {
		return model.Payment{}, badRequest("invalid id")
	}
	p, err := u.payments.FindByID(ctx, paymentID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Payment{}, wrapErr(ErrPaymentNotFound, "payment not found")
	}
	if err != nil {
		return model.Payment{}, dbError(err)
	}
	return p, nil
}

func (u *PaymentUsecase) ListOrderPayments(ctx context.Context, orderID int64) ([]model.Payment, error) {
	if orderID <= 0 {
		return nil, badRequest("invalid order id")
	}
	ps, err := u.payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, dbError(err)
	}
	return ps, nil
}

// pull側の照会
func (u *PaymentUsecase) reconcile(ctx context.Context, rc payment.Reconcilable, p model.Payment) (model.Payment, error) {
	if p.Status.IsTerminal() {
		u.cacheStatus(ctx, p.OutTradeNo, p.Status)
		return p, nil
	}

	qctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	q, err := rc.QueryStatus(qctx, p.OutTradeNo)
	if err != nil {
		obs.Logger.WarnContext(ctx, "trade query failed", "out_trade_no", p.OutTradeNo, "err", err)
		return model.Payment{}, &HTTPError{
			Status:  http.StatusBadGateway,
			Message: "payment provider error",
			Err:     errors.Join(ErrProviderError, err),
		}
	}
	target, ok := q.Status.Outcome()
	if !ok {
		return p, nil
	}
	cur, _, err := u.applyOutcome(ctx, p, target, q.TransactionID)
	if err != nil {
		return model.Payment{}, err
	}
	return cur, nil
}

// applyOutcome は唯一の状態遷移。
// PENDINGの行だけを条件付きで更新し、勝った1人だけがイベントを出す。
// 負けた側は読み直した結果を返すだけ。
func (u *PaymentUsecase) applyOutcome(ctx context.Context, p model.Payment, target model.PaymentStatus, transactionID string) (model.Payment, bool, error) {
	if p.Status.IsTerminal() {
		return p, false, nil
	}

	var txID *string
	if transactionID != "" {
		txID = &transactionID
	}
	won, err := u.payments.TransitionFromPending(ctx, p.OutTradeNo, target, txID, u.now())
	if err != nil {
		return model.Payment{}, false, dbError(err)
	}

	cur, err := u.payments.FindByOutTradeNo(ctx, p.OutTradeNo)
	if err != nil {
		return model.Payment{}, false, dbError(err)
	}
	if !won {
		return cur, false, nil
	}

	obs.Logger.InfoContext(ctx, "payment settled",
		"payment_id", cur.ID, "out_trade_no", cur.OutTradeNo, "status", cur.Status)
	u.cacheStatus(ctx, cur.OutTradeNo, cur.Status)
	u.publish(ctx, cur)
	return cur, true, nil
}

func (u *PaymentUsecase) publish(ctx context.Context, p model.Payment) {
	if u.publisher == nil {
		return
	}
	evType := model.EventPaymentSucceeded
	if p.Status != model.PaymentStatusSuccess {
		evType = model.EventPaymentFailed
	}
	ev := model.PaymentEvent{
		EventID:    uuid.NewString(),
		EventType:  evType,
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		OutTradeNo: p.OutTradeNo,
		Status:     p.Status,
		Amount:     p.Amount,
		OccurredAt: u.now(),
	}
	if p.TransactionID != nil {
		ev.TransactionID = *p.TransactionID
	}
	// 遷移はコミット済みなので、発行失敗はログだけ
	if err := u.publisher.PublishPaymentEvent(ctx, ev); err != nil {
		obs.Logger.ErrorContext(ctx, "publish payment event failed",
			"out_trade_no", p.OutTradeNo, "err", err)
	}
}

func (u *PaymentUsecase) cachedStatus(ctx context.Context, ref string) (model.PaymentStatus, bool) {
	if u.cache == nil {
		return "", false
	}
	st, ok, err := u.cache.Get(ctx, ref)
	if err != nil {
		obs.Logger.WarnContext(ctx, "payment status cache get failed", "out_trade_no", ref, "err", err)
		return "", false
	}
	if !ok || !st.IsTerminal() {
		return "", false
	}
	return st, true
}

func (u *PaymentUsecase) cacheStatus(ctx context.Context, ref string, st model.PaymentStatus) {
	if u.cache == nil || !st.IsTerminal() {
		return
	}
	if err := u.cache.Set(ctx, ref, st); err != nil {
		obs.Logger.WarnContext(ctx, "payment status cache set failed", "out_trade_no", ref, "err", err)
	}
}

func returnOutput(ref string, st model.PaymentStatus) ReturnOutput {
	msg := "payment is being confirmed"
	switch st {
	case model.PaymentStatusSuccess:
		msg = "payment succeeded"
	case model.PaymentStatusFailed:
		msg = "payment failed"
	}
	return ReturnOutput{OutTradeNo: ref, Status: st, Message: msg}
}

