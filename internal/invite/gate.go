package invite

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"eeglab/internal/store"
	"eeglab/pkg/domain"
)

// BootstrapCode is the standing lab onboarding code. It never expires, is
// valid any number of times, and grants the Admin role so the first account
// can administer the lab.
const BootstrapCode = "LAB-2025"

const (
	codePrefix   = "INV-"
	codeLength   = 6
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Gate validates invite codes during registration and mints new ones.
type Gate struct {
	store store.Store
}

// NewGate builds an invite gate over the given store.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s}
}

// ValidateAndConsume checks an invite code and returns the role it grants.
// Codes are matched case-insensitively with surrounding whitespace ignored.
// The bootstrap code is reusable; generated codes are deleted on first
// successful redemption.
func (g *Gate) ValidateAndConsume(code string) (domain.Role, bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return "", false, nil
	}
	if normalized == BootstrapCode {
		return domain.RoleAdmin, true, nil
	}
	inv, ok, err := g.store.GetInvite(normalized)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	if err := g.store.DeleteInvite(normalized); err != nil {
		return "", false, err
	}
	return inv.Role, true, nil
}

// Generate mints a single-use Researcher invite and persists it.
func (g *Gate) Generate() (domain.Invite, error) {
	var b strings.Builder
	b.Grow(len(codePrefix) + codeLength)
	b.WriteString(codePrefix)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return domain.Invite{}, err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	inv := domain.Invite{
		Code:      b.String(),
		Role:      domain.RoleResearcher,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.SaveInvite(inv); err != nil {
		return domain.Invite{}, err
	}
	return inv, nil
}
