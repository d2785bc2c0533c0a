// Package crypt implements the password hashing the crypt() built-in
// exposes: traditional DES crypt(3) for two-character salts and bcrypt for
// $2 salts.
package crypt

import (
	"strings"

	descrypt "github.com/digitive/crypt"
	"golang.org/x/crypto/bcrypt"
)

// Crypt hashes text under salt. A salt beginning with $2 selects bcrypt;
// anything else goes through DES crypt(3). Returns "" on failure.
func Crypt(text, salt string) string {
	if strings.HasPrefix(salt, "$2") {
		h, err := bcrypt.GenerateFromPassword([]byte(text), bcrypt.DefaultCost)
		if err != nil {
			return ""
		}
		return string(h)
	}
	result, err := descrypt.Crypt(text, salt)
	if err != nil {
		return ""
	}
	return result
}

// Check verifies text against a stored hash produced by Crypt.
func Check(text, storedHash string) bool {
	if strings.HasPrefix(storedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(text)) == nil
	}
	if len(storedHash) < 2 {
		return false
	}
	computed := Crypt(text, storedHash[:2])
	return computed != "" && computed == storedHash
}
