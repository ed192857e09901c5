package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims

	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// JWTResolver verifies HS256 access tokens.
type JWTResolver struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

var _ Resolver = (*JWTResolver)(nil)

func NewJWTResolver(cfg Config) (*JWTResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("authn: jwt secret is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &JWTResolver{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken signs an access token for identity.
func (r *JWTResolver) IssueToken(identity Identity) (string, error) {
	p, err := identity.Principal()
	if err != nil {
		return "", err
	}

	if p.IsAnonymous() {
		return "", fmt.Errorf("authn: cannot issue a token for %s", p)
	}

	subject, _ := p.SubjectID()
	now := r.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
		Role:        p.Role().String(),
		Permissions: p.Permissions(),
	})

	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return signed, nil
}

// Resolve verifies a bearer token.
func (r *JWTResolver) Resolve(ctx context.Context, credential string) (authz.Principal, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return authz.Anonymous(), nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims Claims

	token, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		log.Debug(ctx, "rejected access token", log.Cause(err))
		return authz.Principal{}, fmt.Errorf("%w: %w", authz.ErrUnauthenticated, ErrInvalidToken)
	}

	subject := claims.Subject

	p, err := Identity{SubjectID: &subject, Role: claims.Role, Permissions: claims.Permissions}.Principal()
	if err != nil {
		return authz.Principal{}, err
	}

	return p.WithTokenType(authz.TokenTypeAccess), nil
}
