package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = 24 * time.Hour

var (
	secretOnce sync.Once
	jwtSecret  []byte
)

// secret returns the HMAC signing key. Without JWT_SECRET a random key is
// generated, which invalidates all tokens on restart.
func secret() []byte {
	secretOnce.Do(func() {
		if fromEnv := os.Getenv("JWT_SECRET"); fromEnv != "" {
			jwtSecret = []byte(fromEnv)
			return
		}
		jwtSecret = make([]byte, 32)
		if _, err := rand.Read(jwtSecret); err != nil {
			log.Fatal("Could not generate a session secret", "error", err)
		}
		log.Warn("JWT_SECRET is not set, sessions will not survive a restart")
	})
	return jwtSecret
}

func GenerateJWT(subject, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenLifetime).Unix(),
	})
	return token.SignedString(secret())
}

func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
