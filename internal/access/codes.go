// Package access generates and redeems single-use owner onboarding codes.
package access

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/guildpay/guildpay/internal/store"
)

const (
	codeLength   = 5
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxCollisionRetries bounds regeneration when a candidate collides
	// with an existing code.
	maxCollisionRetries = 100
)

// GenerateCodes creates and persists n fresh access codes, returning the
// code values.
func GenerateCodes(ctx context.Context, st *store.Store, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: code count must be positive", store.ErrValidation)
	}

	fresh := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	retries := 0
	for len(codes) < n {
		code, errCode := randomCode()
		if errCode != nil {
			return nil, errCode
		}
		if _, seen := fresh[code]; seen {
			continue
		}
		exists, errExists := st.AccessCodeExists(ctx, code)
		if errExists != nil {
			return nil, errExists
		}
		if exists {
			retries++
			if retries > maxCollisionRetries {
				return nil, fmt.Errorf("access: too many code collisions")
			}
			continue
		}
		fresh[code] = struct{}{}
		codes = append(codes, code)
	}

	if errCreate := st.CreateAccessCodes(ctx, codes); errCreate != nil {
		return nil, errCreate
	}
	return codes, nil
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		idx, errRand := rand.Int(rand.Reader, max)
		if errRand != nil {
			return "", fmt.Errorf("access: random source: %w", errRand)
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
