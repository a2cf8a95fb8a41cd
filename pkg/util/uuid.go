package util

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// Md5ThenHex is a quick hasher
func Md5ThenHex(value []byte) string {
	hasher := md5.New()
	hasher.Write(value)
	return hex.EncodeToString(hasher.Sum(nil))
}

// UUIDFromBytes derives a stable UUID from content bytes. The same input
// always yields the same identifier, so a source manifest maps to one id
// across runs.
func UUIDFromBytes(value []byte) string {
	hash := md5.Sum(value)
	id, err := uuid.FromBytes(hash[:])
	if err != nil {
		return ""
	}
	return id.String()
}
