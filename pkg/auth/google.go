package auth

import (
	"context"
	"log"
	"strings"

	"google.golang.org/api/idtoken"
)

type ExternalIdentity struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// ExternalVerifier validates an identity token issued by a third party.
type ExternalVerifier interface {
	Verify(ctx context.Context, token string) (*ExternalIdentity, bool)
}

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier checks Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*ExternalIdentity, bool) {
	if g.clientID == "" || strings.TrimSpace(token) == "" {
		return nil, false
	}
	p, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		log.Printf("[auth] google token rejected: %v", err)
		return nil, false
	}
	email, _ := p.Claims["email"].(string)
	if p.Subject == "" || email == "" {
		return nil, false
	}
	if verified, ok := p.Claims["email_verified"].(bool); ok && !verified {
		return nil, false
	}
	given, _ := p.Claims["given_name"].(string)
	family, _ := p.Claims["family_name"].(string)
	return &ExternalIdentity{
		ExternalID: p.Subject,
		Email:      strings.ToLower(strings.TrimSpace(email)),
		FirstName:  given,
		LastName:   family,
	}, true
}
