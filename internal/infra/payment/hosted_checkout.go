// Package payment は決済サービス（ホスト型チェックアウト）との接続。
// 決済の確定は外部で行い、完了はwebhookで受け取る。
package payment

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"storefront/internal/logging"
	"storefront/internal/usecase"

	"github.com/google/uuid"
)

// HostedCheckoutGateway はセッションIDを採番して決済ページのURLを組み立てる。
type HostedCheckoutGateway struct {
	baseURL *url.URL
}

var _ usecase.PaymentGateway = (*HostedCheckoutGateway)(nil)

func NewHostedCheckoutGateway(baseURL string) (*HostedCheckoutGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("checkout base url must be absolute")
	}
	return &HostedCheckoutGateway{baseURL: u}, nil
}

func (g *HostedCheckoutGateway) CreateSession(ctx context.Context, req usecase.PaymentSessionRequest) (usecase.PaymentSession, error) {
	if req.Amount.IsNegative() {
		return usecase.PaymentSession{}, errors.New("negative amount")
	}

	id := "cs_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	u := *g.baseURL
	u.Path = u.Path + "/" + id
	q := u.Query()
	q.Set("amount", req.Amount.StringFixed(2))
	u.RawQuery = q.Encode()

	logging.FromCtx(ctx).Info("payment session created", "session_id", id, "amount", req.Amount.StringFixed(2))
	return usecase.PaymentSession{ID: id, RedirectURL: u.String()}, nil
}
