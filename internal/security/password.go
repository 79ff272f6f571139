package security

import "golang.org/x/crypto/bcrypt"

// Operator passwords are long-lived and entered rarely; a cost above the
// library default is affordable here.
const operatorHashCost = 12

// HashPassword derives a bcrypt hash for storing an operator password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), operatorHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
