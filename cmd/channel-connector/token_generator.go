package main

import (
	"fmt"
	"time"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/middlewares"
	"github.com/tenantflow/channel-connector/internal/platform/logger"

	"github.com/golang-jwt/jwt"
)

// generateJwtToken prints a signed bearer token for local testing and for
// wiring up trusted callers.
func generateJwtToken(tenantID string, userID string, role string) {

	cfg := config.GetConfig()

	if cfg.JwtSigningKey == "" {
		logger.Log.Fatal("Jwt_Signing_Key is not configured")
	}

	if role == "" {
		role = middlewares.RoleUser
	}

	claims := middlewares.TokenClaims{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(time.Duration(cfg.JwtTokenExpiry) * time.Minute).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(cfg.JwtSigningKey))
	if err != nil {
		logger.LogFatalError("Unable to sign token", err)
	}

	fmt.Println(signed)
}
