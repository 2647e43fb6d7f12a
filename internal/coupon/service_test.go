package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/papercrane/storefront/internal/store"
)

var errTest = errors.New("boom")

type stubQuerier struct {
	coupon store.Coupon

	insertResult    bool
	insertErr       error
	insertCalls     int
	incrementResult bool
	incrementCalls  int
}

func (s *stubQuerier) GetCouponByCode(ctx context.Context, code string) (store.Coupon, error) {
	if s.coupon.Code == "" {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubQuerier) InsertRedemption(ctx context.Context, arg store.InsertRedemptionParams) (bool, error) {
	s.insertCalls++
	return s.insertResult, s.insertErr
}

func (s *stubQuerier) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error) {
	s.incrementCalls++
	return s.incrementResult, nil
}

func newCoupon() store.Coupon {
	return store.Coupon{
		ID:     uuidToPg(uuid.New()),
		Code:   "SAVE25",
		Kind:   store.CouponKindPercent,
		Value:  2500,
		Active: true,
		ValidFrom: pgtype.Timestamptz{
			Time: time.Now().Add(-time.Hour), Valid: true,
		},
		ValidTo: pgtype.Timestamptz{
			Time: time.Now().Add(time.Hour), Valid: true,
		},
	}
}

func TestValidateUnknownCode(t *testing.T) {
	svc := &Service{Q: &stubQuerier{}}
	_, err := svc.Validate(context.Background(), "NOPE", 10_000, nil)
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestValidateEmptyCode(t *testing.T) {
	svc := &Service{Q: &stubQuerier{coupon: newCoupon()}}
	_, err := svc.Validate(context.Background(), "   ", 10_000, nil)
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for blank code, got %v", err)
	}
}

func TestValidateHappyPath(t *testing.T) {
	svc := &Service{Q: &stubQuerier{coupon: newCoupon()}}
	c, err := svc.Validate(context.Background(), "SAVE25", 10_000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Code != "SAVE25" {
		t.Fatalf("expected coupon back, got %+v", c)
	}
}

func TestRedeemRecordsOnce(t *testing.T) {
	q := &stubQuerier{insertResult: true, incrementResult: true}
	svc := &Service{Q: q}
	err := svc.Redeem(context.Background(), q, uuidToPg(uuid.New()), uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.insertCalls != 1 || q.incrementCalls != 1 {
		t.Fatalf("expected one insert and one increment, got %d/%d", q.insertCalls, q.incrementCalls)
	}
}

func TestRedeemReplaySkipsIncrement(t *testing.T) {
	q := &stubQuerier{insertResult: false}
	svc := &Service{Q: q}
	err := svc.Redeem(context.Background(), q, uuidToPg(uuid.New()), uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.incrementCalls != 0 {
		t.Fatalf("replayed redemption must not touch the counter, got %d increments", q.incrementCalls)
	}
}

func TestRedeemWithoutCouponIsNoop(t *testing.T) {
	q := &stubQuerier{}
	svc := &Service{Q: q}
	err := svc.Redeem(context.Background(), q, pgtype.UUID{}, uuidToPg(uuid.New()), uuidToPg(uuid.New()), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.insertCalls != 0 {
		t.Fatal("orders without a coupon must not insert redemptions")
	}
}

func TestRedeemPropagatesInsertError(t *testing.T) {
	q := &stubQuerier{insertErr: errTest}
	svc := &Service{Q: q}
	err := svc.Redeem(context.Background(), q, uuidToPg(uuid.New()), uuidToPg(uuid.New()), uuidToPg(uuid.New()), 500)
	if !errors.Is(err, errTest) {
		t.Fatalf("expected insert error surfaced, got %v", err)
	}
}
