package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cynix/config"
	"cynix/models"
	"cynix/utils"
)

// Claims is the payload of an API credential.
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// CredentialVerifier issues and checks HS256 credentials. The current secret
// signs; previous secrets are accepted for verification only.
type CredentialVerifier struct {
	secret   []byte
	previous [][]byte
	ttl      time.Duration
	now      func() time.Time
}

func NewCredentialVerifier(cfg config.AuthConfig) *CredentialVerifier {
	v := &CredentialVerifier{
		secret: []byte(cfg.JWTSecret),
		ttl:    time.Duration(cfg.TokenTTL) * time.Hour,
		now:    time.Now,
	}
	for _, s := range cfg.PreviousSecrets {
		if s != "" {
			v.previous = append(v.previous, []byte(s))
		}
	}
	return v
}

// Issue signs a credential for wallet that expires after the configured TTL.
func (v *CredentialVerifier) Issue(wallet string) (string, error) {
	if !utils.IsValidAddress(wallet) {
		return "", models.NewAppError(models.ErrInvalidAddress, "invalid wallet address")
	}
	now := v.now()
	claims := Claims{
		WalletAddress: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks signature and expiry and returns the wallet claim.
func (v *CredentialVerifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, models.NewAppError(models.ErrCredentialInvalid, "missing credential")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	var lastErr error
	for _, key := range v.keys() {
		claims := &Claims{}
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err == nil {
			if claims.WalletAddress == "" {
				return nil, models.NewAppError(models.ErrCredentialInvalid, "credential has no wallet_address")
			}
			return claims, nil
		}
		lastErr = err
		// only a signature mismatch is worth retrying with an older key
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return nil, classifyTokenError(lastErr)
}

func (v *CredentialVerifier) keys() [][]byte {
	return append([][]byte{v.secret}, v.previous...)
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return models.NewAppErrorWithCause(models.ErrCredentialInvalid, "malformed credential", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.NewAppErrorWithCause(models.ErrCredentialExpired, "credential expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return models.NewAppErrorWithCause(models.ErrCredentialInvalid, "invalid credential signature", err)
	default:
		return models.NewAppErrorWithCause(models.ErrCredentialInvalid, "invalid credential", err)
	}
}
