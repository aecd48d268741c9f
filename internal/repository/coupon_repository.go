package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CouponRepository interface {
	//正規化済みコードで有効なクーポンを1件取得。無い・無効はどちらも ErrNotFound
	FindActiveByCode(ctx context.Context, code string) (model.Coupon, error)

	//max_uses 未満のときだけ current_uses を+1する（ストア側で原子的に）。
	//上限に達していたら false。
	IncrementUsageIfAvailable(ctx context.Context, couponID int64) (bool, error)
}
