package feedback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(check AnalysisCheck) *Service {
	svc := NewService(NewMemoryRepo(), check)
	svc.Now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestSubmitStoresFeedback(t *testing.T) {
	svc := newTestService(nil)
	f, err := svc.Submit(context.Background(), "u1", "", Input{Rating: 4, Message: "  clear report  ", Email: "a@b.co"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.ID == "" || f.Rating != 4 || f.Message != "clear report" || f.Email != "a@b.co" {
		t.Fatalf("unexpected feedback %+v", f)
	}

	items, err := svc.List(context.Background(), "u1")
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %+v", err, items)
	}
	if others, _ := svc.List(context.Background(), "u2"); len(others) != 0 {
		t.Fatalf("feedback leaked across users: %+v", others)
	}
}

func TestSubmitFallsBackToAccountEmail(t *testing.T) {
	svc := newTestService(nil)
	f, err := svc.Submit(context.Background(), "u1", "owner@example.com", Input{Rating: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.Email != "owner@example.com" {
		t.Fatalf("expected account email, got %q", f.Email)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(nil)
	cases := []struct {
		name string
		in   Input
		want string
	}{
		{"rating missing", Input{}, "rating must be between 1 and 5"},
		{"rating too high", Input{Rating: 6}, "rating must be between 1 and 5"},
		{"rating negative", Input{Rating: -1}, "rating must be between 1 and 5"},
		{"bad email", Input{Rating: 3, Email: "nope"}, "email is invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), "u1", "", tc.in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := err.Error(); got != ErrValidation.Error()+": "+tc.want {
				t.Fatalf("unexpected message %q", got)
			}
		})
	}
}

func TestSubmitChecksAnalysisOwnership(t *testing.T) {
	var checked []string
	svc := newTestService(func(_ context.Context, userID, analysisID string) error {
		checked = append(checked, userID+"/"+analysisID)
		if analysisID != "a1" {
			return ErrAnalysisNotFound
		}
		return nil
	})

	if _, err := svc.Submit(context.Background(), "u1", "", Input{Rating: 2, AnalysisID: "a2"}); !errors.Is(err, ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
	f, err := svc.Submit(context.Background(), "u1", "", Input{Rating: 2, AnalysisID: "a1"})
	if err != nil || f.AnalysisID != "a1" {
		t.Fatalf("submit: %+v %v", f, err)
	}
	if _, err := svc.Submit(context.Background(), "u1", "", Input{Rating: 2}); err != nil {
		t.Fatalf("general feedback should skip the check: %v", err)
	}
	if len(checked) != 2 || checked[0] != "u1/a2" {
		t.Fatalf("unexpected checks %v", checked)
	}
}
