package usermgr

import (
	"errors"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
)

var ErrUnsupportedHash = errors.New("unsupported password hash")

// HashPassword returns a sha512-crypt ($6$) hash with a random salt.
func HashPassword(password string) (string, error) {
	return sha512_crypt.New().Generate([]byte(password), nil)
}

// VerifyPassword checks password against a shadow hash in $1$, $5$ or $6$
// format. Locked or empty hashes never match.
func VerifyPassword(hash, password string) (bool, error) {
	if hash == "" || strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*") {
		return false, nil
	}
	var c crypt.Crypter
	switch {
	case strings.HasPrefix(hash, "$6$"):
		c = sha512_crypt.New()
	case strings.HasPrefix(hash, "$5$"):
		c = sha256_crypt.New()
	case strings.HasPrefix(hash, "$1$"):
		c = md5_crypt.New()
	default:
		// Ubuntu commonly uses yescrypt ($y$).
		return false, ErrUnsupportedHash
	}
	return c.Verify(hash, []byte(password)) == nil, nil
}

// CheckPassword verifies password for name against the shadow file.
func (m *Manager) CheckPassword(name, password string) (bool, error) {
	sh, err := m.loadShadow()
	if err != nil {
		return false, err
	}
	e := sh.Find(name)
	if e == nil {
		return false, nil
	}
	return VerifyPassword(e.Hash, password)
}
