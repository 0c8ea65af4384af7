// Package auth resolves the caller identity of an incoming gRPC request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"carebridge/backend/internal/domain"
)

// Resolver extracts the authenticated caller from a request context.
type Resolver interface {
	Resolve(ctx context.Context) (domain.CallerIdentity, error)
}

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
}

// JWTResolver verifies HS256 bearer tokens from the authorization metadata.
type JWTResolver struct {
	secret []byte
	issuer string
}

func NewJWTResolver(secret, issuer string) (*JWTResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTResolver{secret: []byte(secret), issuer: issuer}, nil
}

func (r *JWTResolver) Resolve(ctx context.Context) (domain.CallerIdentity, error) {
	raw, err := bearerToken(ctx)
	if err != nil {
		return domain.CallerIdentity{}, err
	}
	return r.Parse(raw)
}

func (r *JWTResolver) Parse(raw string) (domain.CallerIdentity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.CallerIdentity{}, domain.NewError(domain.ErrUnauthenticated, "invalid bearer token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.CallerIdentity{}, domain.NewError(domain.ErrUnauthenticated, "token has no subject")
	}
	roles := make([]string, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, strings.ToUpper(strings.TrimSpace(role)))
	}
	return domain.CallerIdentity{
		UserID: claims.Subject,
		Roles:  roles,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}

// Issue signs a token for caller. Used by tests and local tooling.
func (r *JWTResolver) Issue(caller domain.CallerIdentity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: caller.Roles,
		Email: caller.Email,
		Name:  caller.Name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	for _, v := range md.Get("authorization") {
		scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
		if found && strings.EqualFold(scheme, "bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}
	return "", domain.NewError(domain.ErrUnauthenticated, "authentication required")
}

// HeaderResolver trusts x-user-id and x-user-roles metadata. It is only wired
// for the in-memory demo store.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(ctx context.Context) (domain.CallerIdentity, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	userID := ""
	if v := md.Get("x-user-id"); len(v) > 0 {
		userID = strings.TrimSpace(v[0])
	}
	if userID == "" {
		return domain.CallerIdentity{}, domain.NewError(domain.ErrUnauthenticated, "authentication required")
	}
	var roles []string
	for _, v := range md.Get("x-user-roles") {
		for _, role := range strings.Split(v, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, strings.ToUpper(role))
			}
		}
	}
	return domain.CallerIdentity{UserID: userID, Roles: roles}, nil
}

var (
	_ Resolver = (*JWTResolver)(nil)
	_ Resolver = HeaderResolver{}
)
