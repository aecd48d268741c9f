package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// 存在しない・無効を区別しない（クーポンの存在を漏らさない）
const msgCouponNotFound = "coupon not found"

type CouponUsecase struct {
	coupons repo.CouponRepository
	clock   Clock
	log     *slog.Logger
}

func NewCouponUsecase(coupons repo.CouponRepository, clock Clock) *CouponUsecase {
	return &CouponUsecase{coupons: coupons, clock: clock, log: logging.New("coupon")}
}

type CouponValidation struct {
	CouponID       int64  `json:"coupon_id"`
	Code           string `json:"code"`
	Description    string `json:"description"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  Money  `json:"discount_value"`
	DiscountAmount Money  `json:"discount_amount"`
	NewTotal       Money  `json:"new_total"`
}

// Validate はクーポンが使えるか判定して割引額を返す。
// current_usesは増やさない（消費は注文確定時の Redeem だけ）。
func (u *CouponUsecase) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (CouponValidation, error) {
	normalized, err := checkCouponInput(code, subtotal)
	if err != nil {
		return CouponValidation{}, err
	}

	c, err := u.coupons.FindActiveByCode(ctx, normalized)
	if errors.Is(err, repo.ErrNotFound) {
		return CouponValidation{}, NotFoundError(msgCouponNotFound)
	}
	if err != nil {
		u.log.Error("find coupon", "code", normalized, "err", err)
		return CouponValidation{}, UpstreamError()
	}

	return evaluateCoupon(c, subtotal, u.clock.Now())
}

// Redeem は注文確定時に呼ぶ。判定をやり直してから使用回数を原子的に+1する。
// Tx内のrepoを渡すこと。
func (u *CouponUsecase) Redeem(ctx context.Context, coupons repo.CouponRepository, code string, subtotal decimal.Decimal) (CouponValidation, error) {
	normalized, err := checkCouponInput(code, subtotal)
	if err != nil {
		return CouponValidation{}, err
	}

	c, err := coupons.FindActiveByCode(ctx, normalized)
	if errors.Is(err, repo.ErrNotFound) {
		return CouponValidation{}, NotFoundError(msgCouponNotFound)
	}
	if err != nil {
		u.log.Error("find coupon", "code", normalized, "err", err)
		return CouponValidation{}, UpstreamError()
	}

	v, err := evaluateCoupon(c, subtotal, u.clock.Now())
	if err != nil {
		return CouponValidation{}, err
	}

	//読んだ時点で残っていても、同時に使われて埋まっていることがある
	ok, err := coupons.IncrementUsageIfAvailable(ctx, c.ID)
	if err != nil {
		u.log.Error("increment coupon usage", "coupon_id", c.ID, "err", err)
		return CouponValidation{}, UpstreamError()
	}
	if !ok {
		return CouponValidation{}, ValidationError("coupon usage limit reached")
	}
	return v, nil
}

func checkCouponInput(code string, subtotal decimal.Decimal) (string, error) {
	normalized := model.NormalizeCouponCode(code)
	if normalized == "" || len(normalized) > 64 {
		return "", ValidationError("invalid code")
	}
	if subtotal.IsNegative() {
		return "", ValidationError("invalid subtotal")
	}
	return normalized, nil
}

// 判定順：開始前 → 期限切れ → 使用上限 → 最低金額。最初に引っかかったものを返す。
func evaluateCoupon(c model.Coupon, subtotal decimal.Decimal, now time.Time) (CouponValidation, error) {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return CouponValidation{}, ValidationError("coupon is not yet active")
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return CouponValidation{}, ValidationError("coupon has expired")
	}
	if c.Exhausted() {
		return CouponValidation{}, ValidationError("coupon usage limit reached")
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return CouponValidation{}, ValidationError("minimum order amount is " + c.MinOrderAmount.StringFixed(2))
	}

	discount := c.DiscountFor(subtotal)
	newTotal := subtotal.Sub(discount)
	if newTotal.IsNegative() {
		newTotal = decimal.Zero
	}

	return CouponValidation{
		CouponID:       c.ID,
		Code:           c.Code,
		Description:    c.Description,
		DiscountType:   string(c.DiscountType),
		DiscountValue:  NewMoney(c.DiscountValue),
		DiscountAmount: NewMoney(discount),
		NewTotal:       NewMoney(newTotal),
	}, nil
}
