package dedup

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashTitle returns the hex SHA-256 of the trimmed, lowercased title.
func (d *Detector) HashTitle(title string) string {
	return digest(d.norm.Title(title))
}

// HashBody returns the hex SHA-256 of the body with markup stripped,
// whitespace collapsed, and case folded.
func (d *Detector) HashBody(body string) string {
	return digest(d.norm.Body(body))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
