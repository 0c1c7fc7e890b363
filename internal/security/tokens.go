package security

import (
	"crypto"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMalformed is returned when a token's signature, algorithm, domain or
	// structure is invalid. Callers must not retry or refresh on it.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned when a session token is correctly signed but its
	// exp has passed. Callers may attempt a refresh.
	ErrTokenExpired = errors.New("token expired")
)

// Token use values. Each signing domain stamps and requires its own value so a
// token minted in one domain never verifies in the other.
const (
	useSession = "session"
	useDevice  = "device"
)

const minHMACSecretLen = 16

// sessionClaims are the JWT claims of a user access token.
type sessionClaims struct {
	jwt.RegisteredClaims
	Use string `json:"use"`
}

// deviceClaims are the JWT claims of a device credential. No exp is set.
type deviceClaims struct {
	jwt.RegisteredClaims
	Use        string `json:"use"`
	DeviceID   string `json:"device_id"`
	ResourceID string `json:"resource_id"`
}

// Session is the verified content of an access token.
type Session struct {
	PrincipalID string
	ExpiresAt   time.Time
}

// Device is the verified content of a device credential.
type Device struct {
	DeviceID   string
	ResourceID string
}

// SigningDomain is a key/algorithm pair used exclusively for one token class.
type SigningDomain struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// NewHMACDomain returns a domain that signs with the shared secret using alg
// (HS256, HS384 or HS512).
func NewHMACDomain(alg string, secret []byte) (*SigningDomain, error) {
	var method jwt.SigningMethod
	switch alg {
	case "HS256", "":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: unsupported HMAC algorithm %q", ErrInvalidKey, alg)
	}
	if len(secret) < minHMACSecretLen {
		return nil, fmt.Errorf("%w: HMAC secret must be at least %d bytes", ErrInvalidKey, minHMACSecretLen)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &SigningDomain{method: method, signKey: key, verifyKey: key}, nil
}

// NewKeyPairDomain returns a domain that signs with privateKey (RS256 or ES256)
// and verifies with publicKey.
func NewKeyPairDomain(privateKey crypto.Signer, publicKey crypto.PublicKey) (*SigningDomain, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch KeyAlg(privateKey.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, fmt.Errorf("%w: public key does not match private key type", ErrInvalidKey)
	}
	return &SigningDomain{method: method, signKey: privateKey, verifyKey: publicKey}, nil
}

// Alg returns the JWT alg header value of the domain.
func (d *SigningDomain) Alg() string {
	return d.method.Alg()
}

// SharesKeyWith reports whether d and o verify with the same key material.
func (d *SigningDomain) SharesKeyWith(o *SigningDomain) bool {
	if d == nil || o == nil {
		return false
	}
	switch a := d.verifyKey.(type) {
	case []byte:
		b, ok := o.verifyKey.([]byte)
		return ok && subtle.ConstantTimeCompare(a, b) == 1
	case interface{ Equal(crypto.PublicKey) bool }:
		return a.Equal(o.verifyKey)
	}
	return false
}

// TokenProvider signs and verifies session access tokens and device
// credentials. The two use independent signing domains.
type TokenProvider struct {
	session   *SigningDomain
	device    *SigningDomain
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenProvider returns a TokenProvider. session and device must be distinct
// domains; the issuer is stamped on both token classes and the audience on
// session tokens only.
func NewTokenProvider(session, device *SigningDomain, issuer, audience string, accessTTL time.Duration) (*TokenProvider, error) {
	if session == nil || device == nil {
		return nil, ErrInvalidKey
	}
	if session.SharesKeyWith(device) {
		return nil, fmt.Errorf("%w: session and device domains must not share key material", ErrInvalidKey)
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &TokenProvider{
		session:   session,
		device:    device,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// SetClock replaces the time source used for signing and verification. Tests only.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.now = now
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess signs an access token for principalID that expires accessTTL from now.
func (p *TokenProvider) IssueAccess(principalID string) (string, time.Time, error) {
	expiresAt := p.now().UTC().Add(p.accessTTL).Truncate(time.Second)
	token, err := p.SignSession(principalID, expiresAt)
	return token, expiresAt, err
}

// SignSession signs a session token for principalID with the given expiry.
func (p *TokenProvider) SignSession(principalID string, expiresAt time.Time) (string, error) {
	if principalID == "" {
		return "", ErrTokenMalformed
	}
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principalID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(p.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Use: useSession,
	}
	return jwt.NewWithClaims(p.session.method, claims).SignedString(p.session.signKey)
}

// VerifySession validates a session token. It returns ErrTokenExpired only when
// the token is otherwise valid for the session domain, and ErrTokenMalformed for
// every other failure.
func (p *TokenProvider) VerifySession(tokenString string) (Session, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc(p.session),
		jwt.WithValidMethods([]string{p.session.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	sessionShaped := claims.Use == useSession && claims.Subject != ""
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && sessionShaped && onlyExpired(err) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, ErrTokenMalformed
	}
	if !sessionShaped || claims.ExpiresAt == nil {
		return Session{}, ErrTokenMalformed
	}
	return Session{PrincipalID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignDevice signs a non-expiring device credential binding deviceID to resourceID.
func (p *TokenProvider) SignDevice(deviceID, resourceID string) (string, error) {
	if deviceID == "" || resourceID == "" {
		return "", ErrTokenMalformed
	}
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	claims := deviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			Subject:  deviceID,
			Issuer:   p.issuer,
			IssuedAt: jwt.NewNumericDate(p.now()),
		},
		Use:        useDevice,
		DeviceID:   deviceID,
		ResourceID: resourceID,
	}
	return jwt.NewWithClaims(p.device.method, claims).SignedString(p.device.signKey)
}

// VerifyDevice validates a device credential and returns the bound identities.
func (p *TokenProvider) VerifyDevice(tokenString string) (Device, error) {
	claims := &deviceClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc(p.device),
		jwt.WithValidMethods([]string{p.device.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Device{}, ErrTokenMalformed
	}
	if claims.Use != useDevice || claims.DeviceID == "" || claims.ResourceID == "" {
		return Device{}, ErrTokenMalformed
	}
	return Device{DeviceID: claims.DeviceID, ResourceID: claims.ResourceID}, nil
}

func (p *TokenProvider) keyFunc(d *SigningDomain) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return d.verifyKey, nil
	}
}

// onlyExpired reports whether err carries no claim failure other than expiry.
func onlyExpired(err error) bool {
	for _, other := range []error{
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
