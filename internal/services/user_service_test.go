package services

import (
	"context"
	"testing"
	"time"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/auth"
	"github.com/herderhub/herderhub-api/internal/repository/memory"
)

func TestRegisterLoginRefresh(t *testing.T) {
	tm := auth.NewTokenManager("a", "r", time.Minute, time.Hour)
	svc := NewUserService(memory.NewUsers(), tm)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Username: "kamau", Email: "kamau@example.com", Password: "s3cret-pass", PhoneNumber: "0712345678"})
	if err != nil {
		t.Fatal(err)
	}
	if u.PhoneNumber != "254712345678" || u.Role != "user" || u.PasswordHash == "" {
		t.Errorf("user = %+v", u)
	}

	if _, err := svc.Register(ctx, RegisterRequest{Username: "kamau2", Email: "KAMAU@example.com", Password: "s3cret-pass"}); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("duplicate email err = %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Username: "x", Email: "x@example.com", Password: "s3cret-pass"}); !apperr.Is(err, apperr.Invalid) {
		t.Errorf("short username err = %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Username: "wanjiru", Email: "w@example.com", Password: "short"}); !apperr.Is(err, apperr.Invalid) {
		t.Errorf("weak password err = %v", err)
	}

	pair, err := svc.Login(ctx, "kamau@example.com", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tm.ParseAccess(pair.AccessToken)
	if err != nil || claims.UserID != u.ID {
		t.Errorf("claims = %+v, %v", claims, err)
	}
	if _, err := svc.Login(ctx, "kamau@example.com", "wrong-pass"); !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass"); !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("unknown email err = %v", err)
	}

	if _, err := svc.Refresh(pair.RefreshToken); err != nil {
		t.Errorf("Refresh: %v", err)
	}
	if _, err := svc.Refresh(pair.AccessToken); !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("refresh with access token err = %v", err)
	}
}
