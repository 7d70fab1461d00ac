package user

import "golang.org/x/crypto/bcrypt"

// PasswordHasher hashes plaintext passwords and verifies them against stored hashes.
type PasswordHasher interface {
	Hash(pwd string) ([]byte, error)
	Verify(hash []byte, pwd string) bool
}

type bcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*bcryptHasher)(nil)

// NewBcryptHasher returns a bcrypt PasswordHasher. A zero cost means bcrypt.DefaultCost.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h bcryptHasher) Hash(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), h.cost)
}

func (h bcryptHasher) Verify(hash []byte, pwd string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(pwd)) == nil
}
