package utils // package utils provides token signing, key derivation and QR rendering helpers

import (
    "crypto/rand"  // secure random nonces
    "encoding/hex" // hex encoding of nonces
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for signed cookies and OAuth state
)

// ErrInvalidToken is returned when a signed token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// StateTTL bounds how long a login round trip through the identity provider
// may take.
const StateTTL = 10 * time.Minute

// StateClaims travel through the identity provider as the OAuth state
// parameter.  Next is the local path to resume at; Nonce must match the value
// stored in the browser session that started the login.
type StateClaims struct {
    Next  string `json:"next"`
    Nonce string `json:"nonce"`
    jwt.RegisteredClaims
}

// SignHS256 signs claims with key using HS256.
func SignHS256(key []byte, claims jwt.Claims) (string, error) {
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseHS256 verifies raw with key and decodes it into claims.  Tokens signed
// with any other algorithm are rejected.
func ParseHS256(key []byte, raw string, claims jwt.Claims) error {
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return key, nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil || !tok.Valid {
        return errors.Join(ErrInvalidToken, err)
    }
    return nil
}

// NewStateToken builds the signed OAuth state value for a login that should
// resume at next.
func NewStateToken(key []byte, next, nonce string, now time.Time) (string, error) {
    return SignHS256(key, StateClaims{
        Next:  next,
        Nonce: nonce,
        RegisteredClaims: jwt.RegisteredClaims{
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
        },
    })
}

// ParseStateToken verifies an OAuth state value and returns its claims.
func ParseStateToken(key []byte, raw string) (StateClaims, error) {
    var c StateClaims
    if err := ParseHS256(key, raw, &c); err != nil {
        return StateClaims{}, err
    }
    return c, nil
}

// NewNonce returns a random hex string with n bytes of entropy.
func NewNonce(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
