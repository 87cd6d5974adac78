package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateID returns a 32-char random hex id.
func GenerateID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// GenerateVisitorID returns a prefixed id for anonymous visitors.
func GenerateVisitorID() string {
	return fmt.Sprintf("visitor_%s_%d", GenerateID()[:8], time.Now().Unix())
}

// FormatTime renders timestamps the way the dashboard displays them.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// ValidateMessage bounds chat message content.
func ValidateMessage(content string) bool {
	if len(content) == 0 || len(content) > 4096 {
		return false
	}
	return true
}
