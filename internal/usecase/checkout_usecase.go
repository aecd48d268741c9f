package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	"storefront/internal/notify"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxCheckoutItems = 100

type CheckoutUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	coupons  *CouponUsecase
	activity *ActivityLogUsecase
	notifier NotificationDispatcher
	payments PaymentGateway
	clock    Clock
	log      *slog.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	coupons *CouponUsecase,
	activity *ActivityLogUsecase,
	notifier NotificationDispatcher,
	payments PaymentGateway,
	clock Clock,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:       tx,
		orders:   orders,
		coupons:  coupons,
		activity: activity,
		notifier: notifier,
		payments: payments,
		clock:    clock,
		log:      logging.New("checkout"),
	}
}

// 価格は商品サービスが見積もった値をそのまま使う（商品CRUDは外部）
type CheckoutItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type CreateSessionInput struct {
	Items         []CheckoutItem
	ShippingCost  decimal.Decimal
	TaxAmount     decimal.Decimal
	CouponCode    string
	CustomerEmail string
}

type Quote struct {
	Subtotal       Money   `json:"subtotal"`
	ShippingCost   Money   `json:"shipping_cost"`
	TaxAmount      Money   `json:"tax_amount"`
	DiscountAmount Money   `json:"discount_amount"`
	Total          Money   `json:"total"`
	CouponCode     *string `json:"coupon_code"`
}

type CheckoutSessionOutput struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	Quote       Quote  `json:"quote"`
}

// CompleteCheckoutInput は決済サービスのwebhookが送ってくる内容
type CompleteCheckoutInput struct {
	PaymentReference string
	UserID           *int64
	CustomerEmail    string
	ShippingName     string
	ShippingAddress  string
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	TaxAmount        decimal.Decimal
	CouponCode       string
}

type CheckoutResult struct {
	Order OrderOutput `json:"order"`
	// 同じ決済で既に作られていたら false
	Created bool `json:"created"`
}

// CreateSession は見積もりを作って決済サービスのセッションを開く。
// クーポンは判定だけで、使用回数はここでは消費しない。
func (u *CheckoutUsecase) CreateSession(ctx context.Context, caller Caller, in CreateSessionInput) (CheckoutSessionOutput, error) {
	email, err := checkEmail(in.CustomerEmail)
	if err != nil {
		return CheckoutSessionOutput{}, err
	}
	subtotal, err := quoteSubtotal(in.Items)
	if err != nil {
		return CheckoutSessionOutput{}, err
	}
	if in.ShippingCost.IsNegative() || in.TaxAmount.IsNegative() {
		return CheckoutSessionOutput{}, ValidationError("invalid amount")
	}

	discount := decimal.Zero
	var couponCode *string
	if strings.TrimSpace(in.CouponCode) != "" {
		v, err := u.coupons.Validate(ctx, in.CouponCode, subtotal)
		if err != nil {
			return CheckoutSessionOutput{}, err
		}
		discount = v.DiscountAmount.Decimal
		code := v.Code
		couponCode = &code
	}

	total := model.ComputeTotal(subtotal, in.ShippingCost, in.TaxAmount, discount)
	quote := Quote{
		Subtotal:       NewMoney(subtotal),
		ShippingCost:   NewMoney(in.ShippingCost),
		TaxAmount:      NewMoney(in.TaxAmount),
		DiscountAmount: NewMoney(discount),
		Total:          NewMoney(total),
		CouponCode:     couponCode,
	}

	meta := map[string]string{
		"subtotal":      quote.Subtotal.StringFixed(2),
		"shipping_cost": quote.ShippingCost.StringFixed(2),
		"tax_amount":    quote.TaxAmount.StringFixed(2),
	}
	if couponCode != nil {
		meta["coupon_code"] = *couponCode
	}
	if caller.Authenticated() {
		meta["user_id"] = strconv.FormatInt(*caller.UserID, 10)
	}

	sess, err := u.payments.CreateSession(ctx, PaymentSessionRequest{
		Amount:        total,
		CustomerEmail: email,
		Metadata:      meta,
	})
	if err != nil {
		u.log.Error("create payment session", "err", err)
		return CheckoutSessionOutput{}, UpstreamError()
	}

	return CheckoutSessionOutput{SessionID: sess.ID, RedirectURL: sess.RedirectURL, Quote: quote}, nil
}

var errPaymentAlreadyRecorded = errors.New("payment already recorded")

// CompleteCheckout は決済完了時に注文を paid で作る。
// クーポン消費と注文作成は同じTx。payment_reference が同じなら既存の注文を返す。
// ゲスト注文のアクセストークンは確認メールの中だけで渡す。
func (u *CheckoutUsecase) CompleteCheckout(ctx context.Context, in CompleteCheckoutInput) (CheckoutResult, error) {
	ref := strings.TrimSpace(in.PaymentReference)
	if ref == "" || len(ref) > 255 {
		return CheckoutResult{}, ValidationError("invalid payment_reference")
	}
	email, err := checkEmail(in.CustomerEmail)
	if err != nil {
		return CheckoutResult{}, err
	}
	name := strings.TrimSpace(in.ShippingName)
	addr := strings.TrimSpace(in.ShippingAddress)
	if name == "" || addr == "" {
		return CheckoutResult{}, ValidationError("shipping contact is required")
	}
	if in.Subtotal.IsNegative() || in.ShippingCost.IsNegative() || in.TaxAmount.IsNegative() {
		return CheckoutResult{}, ValidationError("invalid amount")
	}
	if in.UserID != nil && *in.UserID <= 0 {
		return CheckoutResult{}, ValidationError("invalid user_id")
	}

	var (
		created  model.Order
		redeemed *CouponValidation
		token    string
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, found, err := r.Orders().FindByPaymentReference(ctx, ref)
		if err != nil {
			u.log.Error("find order by payment reference", "err", err)
			return UpstreamError()
		}
		if found {
			return errPaymentAlreadyRecorded
		}

		discount := decimal.Zero
		var couponCode *string
		if strings.TrimSpace(in.CouponCode) != "" {
			v, err := u.coupons.Redeem(ctx, r.Coupons(), in.CouponCode, in.Subtotal)
			if err != nil {
				return err
			}
			redeemed = &v
			discount = v.DiscountAmount.Decimal
			code := v.Code
			couponCode = &code
		}

		o := model.Order{
			OrderNumber:      newOrderNumber(u.clock),
			Status:           model.OrderStatusPaid,
			UserID:           in.UserID,
			CustomerEmail:    email,
			ShippingName:     name,
			ShippingAddress:  addr,
			CouponCode:       couponCode,
			Subtotal:         in.Subtotal.Round(2),
			ShippingCost:     in.ShippingCost.Round(2),
			TaxAmount:        in.TaxAmount.Round(2),
			DiscountAmount:   discount,
			Total:            model.ComputeTotal(in.Subtotal, in.ShippingCost, in.TaxAmount, discount),
			PaymentReference: ref,
		}
		if in.UserID == nil {
			t, err := NewAccessToken()
			if err != nil {
				u.log.Error("generate access token", "err", err)
				return UpstreamError()
			}
			token = t
			o.AccessToken = &t
		}

		created, err = r.Orders().Create(ctx, o)
		if errors.Is(err, repo.ErrDuplicate) {
			// 同じwebhookが同時に来た
			return errPaymentAlreadyRecorded
		}
		if err != nil {
			u.log.Error("create order", "err", err)
			return UpstreamError()
		}
		return nil
	})

	if errors.Is(err, errPaymentAlreadyRecorded) {
		return u.existing(ctx, ref)
	}
	if err != nil {
		return CheckoutResult{}, err
	}

	u.activity.RecordBestEffort(ctx, ActivityEntry{
		OrderID: created.ID,
		Action:  model.ActivityActionOrderCreated,
		New: map[string]interface{}{
			"status": string(created.Status),
			"total":  created.Total.StringFixed(2),
		},
		Metadata: map[string]interface{}{"guest": created.IsGuest()},
	})
	if redeemed != nil {
		u.activity.RecordBestEffort(ctx, ActivityEntry{
			OrderID: created.ID,
			Action:  model.ActivityActionCouponRedeemed,
			New: map[string]interface{}{
				"code":            redeemed.Code,
				"discount_amount": redeemed.DiscountAmount.StringFixed(2),
			},
			Metadata: map[string]interface{}{"coupon_id": redeemed.CouponID},
		})
	}

	u.notifyConfirmation(created, token)
	return CheckoutResult{Order: toOrderOutput(created), Created: true}, nil
}

func (u *CheckoutUsecase) existing(ctx context.Context, ref string) (CheckoutResult, error) {
	o, found, err := u.orders.FindByPaymentReference(ctx, ref)
	if err != nil {
		u.log.Error("find order by payment reference", "err", err)
		return CheckoutResult{}, UpstreamError()
	}
	if !found {
		return CheckoutResult{}, ConflictError("order number collision, retry")
	}
	return CheckoutResult{Order: toOrderOutput(o), Created: false}, nil
}

func (u *CheckoutUsecase) notifyConfirmation(o model.Order, token string) {
	if u.notifier == nil {
		return
	}
	payload := map[string]interface{}{
		"order_number":  o.OrderNumber,
		"shipping_name": o.ShippingName,
		"total":         o.Total.StringFixed(2),
	}
	if token != "" {
		payload["access_token"] = token
	}
	u.notifier.Dispatch(notify.New(notify.KindOrderConfirmation, o.CustomerEmail, payload))
}

func quoteSubtotal(items []CheckoutItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, ValidationError("items are required")
	}
	if len(items) > maxCheckoutItems {
		return decimal.Zero, ValidationError("too many items")
	}
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return decimal.Zero, ValidationError("invalid item")
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return subtotal.Round(2), nil
}

func checkEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 255 {
		return "", ValidationError("invalid customer_email")
	}
	a, err := mail.ParseAddress(s)
	if err != nil || a.Address != s {
		return "", ValidationError("invalid customer_email")
	}
	return s, nil
}

// ORD-20261017-1A2B3C4D
func newOrderNumber(clock Clock) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + clock.Now().UTC().Format("20060102") + "-" + strings.ToUpper(id[:8])
}
