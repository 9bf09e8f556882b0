package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed, tampered or mis-issued tokens.
	ErrTokenInvalid = errors.New("invalid token")
)

// CodecConfig carries the signing material and claim constants for the
// token codec. Access and refresh tokens are signed with distinct secrets.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AccessClaims is the explicit claim set carried by access tokens.
// Unknown fields are rejected at the parse boundary.
type AccessClaims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"session_id"`
	jwt.RegisteredClaims
}

// RefreshClaims is the minimal claim set carried by refresh tokens.
// TokenFamily identifies the rotation lineage minted at login; it is
// preserved across refreshes so replayed tokens can be traced to it.
type RefreshClaims struct {
	SessionID   string `json:"session_id"`
	TokenFamily string `json:"token_family"`
	jwt.RegisteredClaims
}

// TokenPair bundles an access token with its refresh counterpart.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenFamily  string `json:"-"`
	SessionID    string `json:"-"`
}

// TokenCodec signs and verifies compact HS256 token pairs.
type TokenCodec struct {
	cfg CodecConfig
}

// NewTokenCodec validates the config and returns a codec.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "citadel.auth"
	}
	if cfg.Audience == "" {
		cfg.Audience = "citadel.api"
	}
	return &TokenCodec{cfg: cfg}, nil
}

// PairInput describes the subject a token pair is minted for.
type PairInput struct {
	UserID      string
	Email       string
	Roles       []string
	Permissions []string
	SessionID   string

	// TokenFamily is empty at login (a new family is minted) and set on
	// refresh so the lineage identifier survives rotation.
	TokenFamily string
}

// GeneratePair mints a signed access/refresh token pair.
func (c *TokenCodec) GeneratePair(in PairInput) (*TokenPair, error) {
	now := time.Now()
	family := in.TokenFamily
	if family == "" {
		family = uuid.NewString()
	}

	access := AccessClaims{
		Email:       in.Email,
		Roles:       in.Roles,
		Permissions: in.Permissions,
		SessionID:   in.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.UserID,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}

	refresh := RefreshClaims{
		SessionID:   in.SessionID,
		TokenFamily: family,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.UserID,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.RefreshTTL)),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(c.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(c.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(c.cfg.AccessTTL.Seconds()),
		TokenFamily:  family,
		SessionID:    in.SessionID,
	}, nil
}

// ParseAccess verifies an access token and returns its claims.
func (c *TokenCodec) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenString, claims, c.cfg.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (c *TokenCodec) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenString, claims, c.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenFamily == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// AccessTTL exposes the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }
