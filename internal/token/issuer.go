// Package token issues and verifies the credentials used by the service:
// signed access tokens, signed API keys, short-lived MFA challenge tokens
// and opaque refresh tokens. Access tokens and API keys are both HS256
// JWTs but carry distinct audiences so one can never be presented in
// place of the other.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by the verifiers. Callers must distinguish
// ErrTokenExpired from ErrTokenInvalid: an expired access token prompts a
// refresh, anything else is rejected outright. API key verification
// deliberately collapses every failure mode into ErrInvalidAPIKey so the
// response does not reveal whether a key is expired, malformed or forged.
var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// APIKeyPrefix is prepended to every issued API key. It lets middleware
// route a bearer credential to the right verifier without attempting a
// signature check first; it is a router hint, not a trust boundary.
const APIKeyPrefix = "duk_"

// Audience strings baked into issued tokens. Verification requires an
// exact match, which keeps the three token kinds mutually unusable.
const (
	audienceAccess = "tenant-auth:access"
	audienceAPIKey = "tenant-auth:apikey"
	audienceMFA    = "tenant-auth:mfa"
)

// AccessClaims are the claims carried by an access token. ProfileID is
// duplicated into the registered subject claim on issue.
type AccessClaims struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// APIKeyClaims are the claims carried by a signed API key.
type APIKeyClaims struct {
	TenantID string   `json:"tenant_id"`
	Scopes   []string `json:"scopes"`
	KeyType  string   `json:"key_type"`
	jwt.RegisteredClaims
}

// mfaClaims bind a pending second-factor verification to one profile.
type mfaClaims struct {
	jwt.RegisteredClaims
}

// Issuer signs and verifies all token kinds with a single HS256 secret.
// The zero value is not usable; construct with NewIssuer.
type Issuer struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	apiKeyTTL    time.Duration
	mfaTTL       time.Duration
	now          func() time.Time
}

// IssuerConfig carries the knobs for NewIssuer. Zero TTLs fall back to
// the defaults from the service configuration: 24h access, 365d API keys,
// 5m MFA challenges.
type IssuerConfig struct {
	Secret    string
	Issuer    string
	AccessTTL time.Duration
	APIKeyTTL time.Duration
	MFATTL    time.Duration
}

// NewIssuer builds an Issuer from config, applying default TTLs.
func NewIssuer(cfg IssuerConfig) *Issuer {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.APIKeyTTL <= 0 {
		cfg.APIKeyTTL = 365 * 24 * time.Hour
	}
	if cfg.MFATTL <= 0 {
		cfg.MFATTL = 5 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "tenant-auth"
	}
	return &Issuer{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		apiKeyTTL: cfg.APIKeyTTL,
		mfaTTL:    cfg.MFATTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewAccessToken signs an access token for the given profile.
func (i *Issuer) NewAccessToken(profileID, email, tenantID, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)
	claims := AccessClaims{
		Email:    email,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken validates signature, issuer, audience and expiry.
// Returns ErrTokenExpired for a token past its exp claim and
// ErrTokenInvalid for every other failure.
func (i *Issuer) VerifyAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	err := i.parse(raw, claims, audienceAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewAPIKey signs a long-lived API key and prepends the fixed prefix.
// A zero ttl applies the issuer default; a negative ttl issues a key
// without an expiry claim (keys that never expire).
func (i *Issuer) NewAPIKey(profileID, tenantID string, scopes []string, keyType string, ttl time.Duration) (string, *time.Time, error) {
	now := i.now()
	claims := APIKeyClaims{
		TenantID: tenantID,
		Scopes:   scopes,
		KeyType:  keyType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  profileID,
			Issuer:   i.issuer,
			Audience: jwt.ClaimStrings{audienceAPIKey},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	var expAt *time.Time
	if ttl == 0 {
		ttl = i.apiKeyTTL
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
		expAt = &exp
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	return APIKeyPrefix + signed, expAt, nil
}

// VerifyAPIKey strips the prefix and verifies the embedded token against
// the API key audience. Every failure maps to ErrInvalidAPIKey.
func (i *Issuer) VerifyAPIKey(key string) (*APIKeyClaims, error) {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return nil, ErrInvalidAPIKey
	}
	claims := &APIKeyClaims{}
	if err := i.parse(strings.TrimPrefix(key, APIKeyPrefix), claims, audienceAPIKey); err != nil {
		return nil, ErrInvalidAPIKey
	}
	return claims, nil
}

// NewMFAChallengeToken binds a pending MFA verification to a profile
// without granting any access. Expires after five minutes.
func (i *Issuer) NewMFAChallengeToken(profileID string) (string, error) {
	now := i.now()
	claims := mfaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{audienceMFA},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.mfaTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyMFAChallengeToken returns the profile ID bound to a challenge
// token. Expired and malformed challenges are not distinguished; either
// way the client restarts the login.
func (i *Issuer) VerifyMFAChallengeToken(raw string) (string, error) {
	claims := &mfaClaims{}
	if err := i.parse(raw, claims, audienceMFA); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// parse runs the shared verification path: HS256 only, exact issuer and
// audience match, expiry enforced by the jwt library.
func (i *Issuer) parse(raw string, claims jwt.Claims, audience string) error {
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithAudience(audience))
	if err != nil {
		return err
	}
	if !tok.Valid {
		return jwt.ErrTokenUnverifiable
	}
	return nil
}
