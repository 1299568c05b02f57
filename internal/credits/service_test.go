package credits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func seeded(t *testing.T, userID string, credits int) *Service {
	t.Helper()
	svc := NewService()
	if credits > 0 {
		if _, err := svc.Grant(context.Background(), userID, credits); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	return svc
}

func TestBalanceMissingAccount(t *testing.T) {
	svc := NewService()
	if _, err := svc.Balance(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := svc.HasEnough(context.Background(), "nobody", 25)
	if err != nil || ok {
		t.Fatalf("expected missing account to count as zero, got ok=%v err=%v", ok, err)
	}
}

func TestDebitRefusesOverdraft(t *testing.T) {
	ctx := context.Background()
	svc := seeded(t, "user-1", 30)

	ok, err := svc.Debit(ctx, "user-1", 25, ForAnalysis(EntryDebit, "a1"))
	if err != nil || !ok {
		t.Fatalf("first debit: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Debit(ctx, "user-1", 25, ForAnalysis(EntryDebit, "a2"))
	if err != nil || ok {
		t.Fatalf("second debit should be refused: ok=%v err=%v", ok, err)
	}
	if got, _ := svc.Balance(ctx, "user-1"); got != 5 {
		t.Fatalf("expected balance 5, got %d", got)
	}
}

func TestDebitMissingAccountIsInsufficient(t *testing.T) {
	ok, err := NewService().Debit(context.Background(), "ghost", 25, Ref{})
	if err != nil || ok {
		t.Fatalf("expected false,nil got ok=%v err=%v", ok, err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc := seeded(t, "user-1", 100)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Debit(ctx, "user-1", 25, Ref{})
			if err != nil {
				t.Errorf("Debit: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 4 {
		t.Fatalf("expected exactly 4 successful debits, got %d", wins.Load())
	}
	if got, _ := svc.Balance(ctx, "user-1"); got != 0 {
		t.Fatalf("expected balance 0, got %d", got)
	}
}

func TestCreditCreatesAccountAndJournals(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	if err := svc.Credit(ctx, "user-1", 25, ForAnalysis(EntryRefund, "a1")); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got, _ := svc.Balance(ctx, "user-1"); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}

	entries, err := svc.Entries(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != EntryRefund || entries[0].AnalysisID != "a1" || entries[0].BalanceAfter != 25 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestEntriesNewestFirstWithSignedAmounts(t *testing.T) {
	ctx := context.Background()
	svc := seeded(t, "user-1", 50)
	if _, err := svc.Debit(ctx, "user-1", 25, ForAnalysis(EntryDebit, "a1")); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if err := svc.Credit(ctx, "user-1", 25, ForAnalysis(EntryRefund, "a1")); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	entries, _ := svc.Entries(ctx, "user-1", 0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantTypes := []string{EntryRefund, EntryDebit, EntryGrant}
	wantAmounts := []int{25, -25, 50}
	for i := range entries {
		if entries[i].Type != wantTypes[i] || entries[i].Amount != wantAmounts[i] {
			t.Fatalf("entry %d: got %s %d", i, entries[i].Type, entries[i].Amount)
		}
	}
}

func TestInvalidAmounts(t *testing.T) {
	svc := NewService()
	if _, err := svc.Debit(context.Background(), "u", 0, Ref{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for debit, got %v", err)
	}
	if err := svc.Credit(context.Background(), "u", -5, Ref{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for credit, got %v", err)
	}
}

func TestSignupGrantAppliedOnce(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	svc.SignupCredits = 100

	for i := 0; i < 3; i++ {
		got, err := svc.Balance(ctx, "new-user")
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if got != 100 {
			t.Fatalf("expected 100, got %d", got)
		}
	}
	entries, _ := svc.Entries(ctx, "new-user", 10)
	if len(entries) != 1 || entries[0].Type != EntryGrant {
		t.Fatalf("expected a single grant entry, got %+v", entries)
	}
}
