package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims are the access token claims issued by the auth platform
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// RevocationChecker reports when a user last signed out
type RevocationChecker interface {
	RevokedAt(ctx context.Context, userID string) (Revocation, bool, error)
}

// VerifierConfig holds token verification settings
type VerifierConfig struct {
	Secret string
	// Issuer is checked when set
	Issuer      string
	Revocations RevocationChecker
}

// Verifier validates HS256 access tokens
type Verifier struct {
	secret      []byte
	issuer      string
	revocations RevocationChecker
}

// NewVerifier creates a Verifier
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		revocations: cfg.Revocations,
	}
}

func (v *Verifier) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subject returns the user id of a validly signed, unexpired token. It
// does not consult revocations.
func (v *Verifier) Subject(tokenString string) (string, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Verify validates the token and returns its principal. A token issued
// before the user's last sign-out is rejected; see Revocation.Covers for
// tokens from the same second.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*usersession.Principal, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.verify_token")
	defer span.End()

	claims, err := v.parse(tokenString)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("user_id", claims.Subject))

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	if v.revocations != nil {
		rev, ok, err := v.revocations.RevokedAt(ctx, claims.Subject)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if ok && rev.Covers(issuedAt, claims.SessionID) {
			telemetry.RecordError(span, ErrTokenRevoked)
			return nil, ErrTokenRevoked
		}
	}

	return &usersession.Principal{
		ID:       claims.Subject,
		Email:    claims.Email,
		Role:     claims.Role,
		IssuedAt: issuedAt,
	}, nil
}

// ForToken returns the Authenticator of one request. An empty token means
// nobody is signed in, which is not an error.
func (v *Verifier) ForToken(tokenString string) usersession.Authenticator {
	return usersession.AuthenticatorFunc(func(ctx context.Context) (*usersession.Principal, error) {
		if tokenString == "" {
			return nil, nil
		}
		return v.Verify(ctx, tokenString)
	})
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
