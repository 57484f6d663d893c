package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"pawmarket/internal/domain"
	tokenrepo "pawmarket/internal/repository/token"
)

type memoryTokens struct {
	tokens    map[string]tokenrepo.Token
	createErr []error
	deleted   []string
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: map[string]tokenrepo.Token{}}
}

func (m *memoryTokens) Create(_ context.Context, t tokenrepo.Token) error {
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	m.tokens[t.Token] = t
	return nil
}

func (m *memoryTokens) Get(_ context.Context, token string) (*tokenrepo.Token, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *memoryTokens) Delete(_ context.Context, token string) error {
	m.deleted = append(m.deleted, token)
	delete(m.tokens, token)
	return nil
}

func TestIssueAndAuthenticate(t *testing.T) {
	repo := newMemoryTokens()
	svc := New(repo)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	userID, err := svc.Authenticate(ctx, tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %q", userID)
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	repo := newMemoryTokens()
	repo.createErr = []error{domain.ErrAlreadyExists, nil}
	svc := New(repo)

	if _, err := svc.Issue(context.Background(), "u1", time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(repo.tokens) != 1 {
		t.Fatalf("expected one stored token, got %d", len(repo.tokens))
	}
}

func TestAuthenticateRejects(t *testing.T) {
	repo := newMemoryTokens()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.tokens["expired"] = tokenrepo.Token{Token: "expired", UserID: "u1", Kind: kindAccess, ExpiresAt: now.Add(-time.Minute)}
	repo.tokens["refresh"] = tokenrepo.Token{Token: "refresh", UserID: "u1", Kind: "refresh", ExpiresAt: now.Add(time.Hour)}
	svc := New(repo)
	svc.now = func() time.Time { return now }

	for _, tok := range []string{"", "unknown", "expired", "refresh"} {
		if _, err := svc.Authenticate(context.Background(), tok); !errors.Is(err, domain.ErrNotSignedIn) {
			t.Fatalf("token %q: expected ErrNotSignedIn, got %v", tok, err)
		}
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "expired" {
		t.Fatalf("expected expired token deleted, got %v", repo.deleted)
	}
}
