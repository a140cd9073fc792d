package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
)

// Claims is the payload of a console access token.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HMAC-signed access tokens.
type Validator struct {
	secret    []byte
	issuer    string
	algorithm string
	clock     clock.Clock
}

func NewValidator(secret, issuer, algorithm string, clk clock.Clock) (*Validator, error) {
	if jwt.GetSigningMethod(algorithm) == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if _, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not HMAC", algorithm)
	}
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Validator{secret: []byte(secret), issuer: issuer, algorithm: algorithm, clock: clk}, nil
}

// Validate parses token and returns its identity.
func (v *Validator) Validate(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.GetSigningMethod(v.algorithm) {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return Identity{}, fmt.Errorf("%w: missing subject or token id", ErrInvalidToken)
	}

	return Identity{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Issue signs a token for id valid for ttl. The console's login flow issues
// the real tokens; tests use Issue to mint them.
func (v *Validator) Issue(id Identity, ttl time.Duration) (string, Identity, error) {
	now := v.clock.Now()
	if id.TokenID == "" {
		id.TokenID = uuid.NewString()
	}
	id.ExpiresAt = now.Add(ttl).Truncate(time.Second)

	claims := Claims{
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.TokenID,
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.GetSigningMethod(v.algorithm), claims).SignedString(v.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, id, nil
}
