// Package identity resolves opaque bearer tokens to user ids.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"pawmarket/internal/domain"
	tokenrepo "pawmarket/internal/repository/token"
)

const kindAccess = "access"

type Service struct {
	repo tokenrepo.Repository
	now  func() time.Time
}

func New(repo tokenrepo.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Issue stores a new access token for userID valid for ttl.
func (s *Service) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	expiresAt := s.now().Add(ttl)
	for i := 0; i < 5; i++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		err = s.repo.Create(ctx, tokenrepo.Token{
			Token:     token,
			UserID:    userID,
			Kind:      kindAccess,
			ExpiresAt: expiresAt,
		})
		if err == nil {
			return token, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		return "", err
	}
	return "", errors.New("token collision")
}

// Authenticate returns the user behind token. Unknown, expired and
// non-access tokens yield domain.ErrNotSignedIn; expired ones are deleted.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrNotSignedIn
	}
	meta, err := s.repo.Get(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNotSignedIn
		}
		return "", err
	}
	if meta.Kind != kindAccess || meta.UserID == "" {
		return "", domain.ErrNotSignedIn
	}
	if s.now().After(meta.ExpiresAt) {
		_ = s.repo.Delete(ctx, token)
		return "", domain.ErrNotSignedIn
	}
	return meta.UserID, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
