//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"membership-access/internal/domain"
	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
	"membership-access/internal/usecase"
)

func validIssue() usecase.IssueRequest {
	return usecase.IssueRequest{
		UserID:               "u-1",
		CreatorID:            "creator-1",
		ChannelID:            "-100123",
		SubscriptionDuration: 30,
		Tier:                 "PRO",
		PaymentAmount:        ptr(9.99),
		ChannelName:          "Alpha Calls",
		CreatorName:          "Alice",
	}
}

func newTokenUC(repo *MockAccessTokenRepo, granter *MockGranter, clk *fakeClock) usecase.TokenUseCase {
	seq := 0
	gen := func() (string, error) {
		seq++
		return strings.Repeat("ab", 31) + string(rune('0'+seq/10)) + string(rune('0'+seq%10)), nil
	}
	return usecase.NewTokenUseCase(repo, granter, "https://members.example.com/", newTestLogger(),
		usecase.WithClock(clk.Now), usecase.WithTokenGenerator(gen))
}

func TestTokenUseCase_Issue(t *testing.T) {
	t.Run("should issue token with end date and access url", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, &MockGranter{}, clk)

		// Act
		res, err := uc.Issue(context.Background(), validIssue())

		// Assert
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !res.Token.SubscriptionEndDate.Equal(t0.Add(30 * 24 * time.Hour)) {
			t.Errorf("end date = %v", res.Token.SubscriptionEndDate)
		}
		if res.Token.Used {
			t.Error("new token must be unused")
		}
		if res.AccessURL != "https://members.example.com/access/"+res.Token.Token {
			t.Errorf("access url = %q", res.AccessURL)
		}
		if !strings.HasPrefix(res.QRCode, "data:image/png;base64,") {
			t.Errorf("qr code prefix = %q", res.QRCode[:min(30, len(res.QRCode))])
		}
		if _, err := repo.FindByToken(context.Background(), nil, res.Token.Token); err != nil {
			t.Errorf("token not persisted: %v", err)
		}
	})

	t.Run("should generate distinct 64-char tokens by default", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		uc := usecase.NewTokenUseCase(repo, nil, "http://localhost:8080", newTestLogger())

		// Act
		a, errA := uc.Issue(context.Background(), validIssue())
		b, errB := uc.Issue(context.Background(), validIssue())

		// Assert
		if errA != nil || errB != nil {
			t.Fatalf("Issue: %v / %v", errA, errB)
		}
		if len(a.Token.Token) != 64 || a.Token.Token == b.Token.Token {
			t.Errorf("tokens %q and %q", a.Token.Token, b.Token.Token)
		}
	})

	t.Run("should list every missing field", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		uc := newTokenUC(repo, nil, newFakeClock(t0))
		req := validIssue()
		req.UserID = ""
		req.PaymentAmount = nil
		req.Tier = "GOLD"

		// Act
		_, err := uc.Issue(context.Background(), req)

		// Assert
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		want := []string{"userId", "tier", "paymentAmount"}
		if strings.Join(verr.Fields, ",") != strings.Join(want, ",") {
			t.Errorf("fields = %v, want %v", verr.Fields, want)
		}
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Error("validation error should match ErrInvalidArgument")
		}
	})

	t.Run("should reject non-positive duration", func(t *testing.T) {
		uc := newTokenUC(NewMockAccessTokenRepo(), nil, newFakeClock(t0))
		req := validIssue()
		req.SubscriptionDuration = 0

		_, err := uc.Issue(context.Background(), req)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("should accept zero payment amount", func(t *testing.T) {
		uc := newTokenUC(NewMockAccessTokenRepo(), nil, newFakeClock(t0))
		req := validIssue()
		req.PaymentAmount = ptr(0.0)

		if _, err := uc.Issue(context.Background(), req); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	})
}

func TestTokenUseCase_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("should redeem once then report who used it", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		granter := &MockGranter{}
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, granter, clk)
		issued, err := uc.Issue(ctx, validIssue())
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		token := issued.Token.Token

		// Act
		clk.Set(t0.Add(5 * 24 * time.Hour))
		res, err := uc.Redeem(ctx, token, model.Identity{ID: "777", Handle: "alice"})

		// Assert
		if err != nil {
			t.Fatalf("first Redeem: %v", err)
		}
		if !res.Token.Used || res.Token.UsedAt == nil || !res.Token.UsedAt.Equal(clk.Now()) {
			t.Errorf("token after redeem = %+v", res.Token)
		}
		if res.InviteLink == "" || len(granter.Granted) != 1 {
			t.Errorf("expected one invite link, got %q (%d grants)", res.InviteLink, len(granter.Granted))
		}

		firstUse := *res.Token.UsedAt
		clk.Set(t0.Add(6 * 24 * time.Hour))
		_, err = uc.Redeem(ctx, token, model.Identity{ID: "888"})

		var conflict *domain.RedemptionConflict
		if !errors.As(err, &conflict) {
			t.Fatalf("expected RedemptionConflict, got %v", err)
		}
		if !errors.Is(err, domain.ErrTokenAlreadyUsed) {
			t.Error("conflict should unwrap to ErrTokenAlreadyUsed")
		}
		if conflict.UsedAt == nil || !conflict.UsedAt.Equal(firstUse) {
			t.Errorf("usedAt changed: %v", conflict.UsedAt)
		}
		if conflict.RedeemerID == nil || *conflict.RedeemerID != "777" {
			t.Errorf("redeemer id = %v", conflict.RedeemerID)
		}
		stored, _ := repo.FindByToken(ctx, nil, token)
		if !stored.UsedAt.Equal(firstUse) {
			t.Errorf("stored usedAt = %v, want %v", stored.UsedAt, firstUse)
		}
	})

	t.Run("should reject expired token and leave it unused", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, nil, clk)
		req := validIssue()
		req.SubscriptionDuration = 1
		issued, _ := uc.Issue(ctx, req)

		// Act
		clk.Set(t0.Add(2 * 24 * time.Hour))
		_, err := uc.Redeem(ctx, issued.Token.Token, model.Identity{})

		// Assert
		if !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		stored, _ := repo.FindByToken(ctx, nil, issued.Token.Token)
		if stored.Used {
			t.Error("expired token must stay unused")
		}
	})

	t.Run("should still redeem exactly at the end date", func(t *testing.T) {
		repo := NewMockAccessTokenRepo()
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, nil, clk)
		issued, _ := uc.Issue(ctx, validIssue())

		clk.Set(issued.Token.SubscriptionEndDate)
		if _, err := uc.Redeem(ctx, issued.Token.Token, model.Identity{}); err != nil {
			t.Fatalf("Redeem at end date: %v", err)
		}
	})

	t.Run("should report unknown token", func(t *testing.T) {
		uc := newTokenUC(NewMockAccessTokenRepo(), nil, newFakeClock(t0))

		_, err := uc.Redeem(ctx, "nope", model.Identity{})
		if !errors.Is(err, domain.ErrTokenNotFound) || !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("should classify a lost race as already used", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, nil, clk)
		issued, _ := uc.Issue(ctx, validIssue())
		other := t0.Add(time.Minute)
		repo.MarkUsedFunc = func(ctx context.Context, tx repository.Tx, token string, who model.Identity, usedAt time.Time) (bool, error) {
			// Another request wins between the read and the write.
			repo.MarkUsedFunc = nil
			if _, err := repo.MarkUsed(ctx, tx, token, model.Identity{ID: "winner"}, other); err != nil {
				return false, err
			}
			return false, nil
		}

		// Act
		_, err := uc.Redeem(ctx, issued.Token.Token, model.Identity{ID: "loser"})

		// Assert
		var conflict *domain.RedemptionConflict
		if !errors.As(err, &conflict) {
			t.Fatalf("expected RedemptionConflict, got %v", err)
		}
		if *conflict.RedeemerID != "winner" || !conflict.UsedAt.Equal(other) {
			t.Errorf("conflict = %+v", conflict)
		}
	})

	t.Run("should let exactly one concurrent redemption succeed", func(t *testing.T) {
		// Arrange
		repo := NewMockAccessTokenRepo()
		uc := newTokenUC(repo, nil, newFakeClock(t0))
		issued, _ := uc.Issue(ctx, validIssue())

		// Act
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := uc.Redeem(ctx, issued.Token.Token, model.Identity{})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrTokenAlreadyUsed):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		// Assert
		if wins != 1 || conflicts != 15 {
			t.Errorf("wins=%d conflicts=%d", wins, conflicts)
		}
	})

	t.Run("should succeed when invite link fails", func(t *testing.T) {
		repo := NewMockAccessTokenRepo()
		granter := &MockGranter{GrantAccessFunc: func(ctx context.Context, t *model.AccessToken) (string, error) {
			return "", errors.New("bot is not an admin")
		}}
		uc := newTokenUC(repo, granter, newFakeClock(t0))
		issued, _ := uc.Issue(ctx, validIssue())

		res, err := uc.Redeem(ctx, issued.Token.Token, model.Identity{})
		if err != nil {
			t.Fatalf("Redeem: %v", err)
		}
		if res.InviteLink != "" {
			t.Errorf("invite link = %q", res.InviteLink)
		}
	})
}

func TestTokenUseCase_List(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccessTokenRepo()
	clk := newFakeClock(t0)
	uc := newTokenUC(repo, nil, clk)

	short := validIssue()
	short.SubscriptionDuration = 1
	expiredUnused, _ := uc.Issue(ctx, short)
	used, _ := uc.Issue(ctx, validIssue())
	other := validIssue()
	other.ChannelID = "-100999"
	_, _ = uc.Issue(ctx, other)
	if _, err := uc.Redeem(ctx, used.Token.Token, model.Identity{}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	clk.Set(t0.Add(2 * 24 * time.Hour))

	tests := []struct {
		name   string
		filter usecase.TokenFilter
		want   int
	}{
		{"all", usecase.TokenFilter{}, 3},
		{"used", usecase.TokenFilter{Status: model.TokenStatusUsed}, 1},
		{"unused", usecase.TokenFilter{Status: model.TokenStatusUnused}, 2},
		{"expired", usecase.TokenFilter{Status: model.TokenStatusExpired}, 1},
		{"active", usecase.TokenFilter{Status: model.TokenStatusActive}, 2},
		{"by channel", usecase.TokenFilter{ChannelID: "-100999"}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := uc.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("got %d tokens, want %d", len(got), tc.want)
			}
		})
	}

	t.Run("should reject unknown status", func(t *testing.T) {
		_, err := uc.List(ctx, usecase.TokenFilter{Status: "pending"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	if expiredUnused.Token.Status(clk.Now()) != model.TokenStatusExpired {
		t.Errorf("short token status = %s", expiredUnused.Token.Status(clk.Now()))
	}
}

func TestTokenUseCase_Update(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (usecase.TokenUseCase, *MockAccessTokenRepo, *fakeClock, string) {
		t.Helper()
		repo := NewMockAccessTokenRepo()
		clk := newFakeClock(t0)
		uc := newTokenUC(repo, nil, clk)
		issued, err := uc.Issue(ctx, validIssue())
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return uc, repo, clk, issued.Token.Token
	}

	t.Run("duration recomputes end date", func(t *testing.T) {
		uc, _, _, token := setup(t)

		got, err := uc.Update(ctx, token, usecase.TokenPatch{SubscriptionDuration: ptr(60)})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !got.SubscriptionEndDate.Equal(t0.Add(60 * 24 * time.Hour)) {
			t.Errorf("end date = %v", got.SubscriptionEndDate)
		}
	})

	t.Run("end date recomputes duration", func(t *testing.T) {
		uc, _, _, token := setup(t)
		end := t0.Add(10*24*time.Hour + time.Hour)

		got, err := uc.Update(ctx, token, usecase.TokenPatch{SubscriptionEndDate: &end})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.SubscriptionDuration != 11 {
			t.Errorf("duration = %d, want 11", got.SubscriptionDuration)
		}
	})

	t.Run("conflicting duration and end date", func(t *testing.T) {
		uc, _, _, token := setup(t)
		end := t0.Add(5 * 24 * time.Hour)

		_, err := uc.Update(ctx, token, usecase.TokenPatch{SubscriptionDuration: ptr(60), SubscriptionEndDate: &end})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("end date before start", func(t *testing.T) {
		uc, _, _, token := setup(t)
		end := t0.Add(-time.Hour)

		_, err := uc.Update(ctx, token, usecase.TokenPatch{SubscriptionEndDate: &end})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("reset used clears redeemer", func(t *testing.T) {
		uc, repo, _, token := setup(t)
		if _, err := uc.Redeem(ctx, token, model.Identity{ID: "1", Handle: "bob"}); err != nil {
			t.Fatalf("Redeem: %v", err)
		}

		got, err := uc.Update(ctx, token, usecase.TokenPatch{Used: ptr(false)})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.Used || got.UsedAt != nil || got.RedeemerID != nil || got.RedeemerHandle != nil {
			t.Errorf("token = %+v", got)
		}
		stored, _ := repo.FindByToken(ctx, nil, token)
		if stored.Used {
			t.Error("reset not persisted")
		}
		if _, err := uc.Redeem(ctx, token, model.Identity{}); err != nil {
			t.Errorf("reset token should be redeemable again: %v", err)
		}
	})

	t.Run("mark used sets usedAt", func(t *testing.T) {
		uc, _, clk, token := setup(t)
		clk.Set(t0.Add(time.Hour))

		got, err := uc.Update(ctx, token, usecase.TokenPatch{Used: ptr(true), RedeemerHandle: ptr("carol")})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !got.Used || got.UsedAt == nil || !got.UsedAt.Equal(clk.Now()) || *got.RedeemerHandle != "carol" {
			t.Errorf("token = %+v", got)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		uc, _, _, _ := setup(t)

		_, err := uc.Update(ctx, "missing", usecase.TokenPatch{Used: ptr(true)})
		if !errors.Is(err, domain.ErrTokenNotFound) {
			t.Fatalf("expected ErrTokenNotFound, got %v", err)
		}
	})
}

func TestTokenUseCase_DeleteAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccessTokenRepo()
	uc := newTokenUC(repo, nil, newFakeClock(t0))
	a, _ := uc.Issue(ctx, validIssue())
	_, _ = uc.Issue(ctx, validIssue())

	if err := uc.Delete(ctx, a.Token.Token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := uc.Delete(ctx, a.Token.Token); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("second Delete: %v", err)
	}

	counts, err := uc.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.TokenStatusUnused] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
