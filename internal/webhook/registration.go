package webhook

import (
	"context"
	"errors"
	"time"

	billingdomain "github.com/tariron/saasodoo-sub008/internal/billing/domain"
	"go.uber.org/zap"
)

// Registrar makes sure the ledger delivers events to this deployment's
// callback URL. The ledger's registration list is the source of truth,
// so the check-then-create below is safe to run from every replica at
// startup: losers of the race get a conflict and treat it as done.
type Registrar struct {
	ledger      billingdomain.LedgerClient
	log         *zap.Logger
	callbackURL string
}

func NewRegistrar(ledger billingdomain.LedgerClient, log *zap.Logger, callbackURL string) *Registrar {
	return &Registrar{
		ledger:      ledger,
		log:         log.Named("webhook.registrar"),
		callbackURL: callbackURL,
	}
}

// EnsureRegistration registers the callback URL unless it already
// exists. A conflict from a concurrent replica is success.
func (r *Registrar) EnsureRegistration(ctx context.Context) error {
	existing, err := r.ledger.ListCallbacks(ctx)
	if err != nil {
		return err
	}
	for _, url := range existing {
		if url == r.callbackURL {
			r.log.Debug("callback already registered", zap.String("url", r.callbackURL))
			return nil
		}
	}

	err = r.ledger.RegisterCallback(ctx, r.callbackURL)
	if errors.Is(err, billingdomain.ErrCallbackExists) {
		r.log.Info("callback registered by another replica", zap.String("url", r.callbackURL))
		return nil
	}
	if err != nil {
		return err
	}
	r.log.Info("callback registered", zap.String("url", r.callbackURL))
	return nil
}

// EnsureRegistrationWithRetry keeps trying in the background so a
// ledger outage at boot does not take the whole process down.
func (r *Registrar) EnsureRegistrationWithRetry(ctx context.Context) {
	backoff := time.Second
	for {
		err := r.EnsureRegistration(ctx)
		if err == nil {
			return
		}
		r.log.Warn("webhook registration failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}
