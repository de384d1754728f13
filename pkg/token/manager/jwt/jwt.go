// Copyright 2021-2026 RCSB PDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jwt implements the token manager with HMAC-signed JWTs.
package jwt

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/errtypes"
	"github.com/rcsb/depot/pkg/token"
)

const defaultExpiration int64 = 3600 // 1 hour

type config struct {
	Secret    string `mapstructure:"jwt_secret"`
	Algorithm string `mapstructure:"jwt_algorithm"`
	Duration  int64  `mapstructure:"jwt_duration"`
}

type manager struct {
	conf   *config
	method jwt.SigningMethod
}

// New returns a token manager that uses JWT as tokens.
func New(m map[string]interface{}) (token.Manager, error) {
	c := &config{}
	if err := mapstructure.Decode(m, c); err != nil {
		return nil, errors.Wrap(err, "jwt: error decoding conf")
	}
	if c.Secret == "" {
		return nil, errors.New("jwt: jwt_secret not set")
	}
	if c.Algorithm == "" {
		c.Algorithm = "HS256"
	}
	if c.Duration == 0 {
		c.Duration = defaultExpiration
	}

	method := jwt.GetSigningMethod(c.Algorithm)
	if method == nil {
		return nil, errors.Errorf("jwt: unknown signing algorithm %q", c.Algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("jwt: algorithm %q is not HMAC-based", c.Algorithm)
	}

	return &manager{conf: c, method: method}, nil
}

func (m *manager) MintToken(ctx context.Context, subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "depot",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(m.conf.Duration) * time.Second)),
	}

	t := jwt.NewWithClaims(m.method, claims)
	tkn, err := t.SignedString([]byte(m.conf.Secret))
	if err != nil {
		return "", errors.Wrapf(err, "jwt: error signing token for subject %s", subject)
	}
	return tkn, nil
}

func (m *manager) DismantleToken(ctx context.Context, tkn string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tkn, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.conf.Secret), nil
	}, jwt.WithValidMethods([]string{m.conf.Algorithm}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errtypes.InvalidCredentials("token invalid: " + err.Error())
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errtypes.InvalidCredentials("token invalid")
	}
	return claims.Subject, nil
}
