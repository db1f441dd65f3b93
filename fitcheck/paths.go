package fitcheck

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UserDir returns the directory holding a user's files under root. User IDs
// are single path elements; anything that could escape root is rejected.
func UserDir(root, userID string) (string, error) {
	if userID == "" || userID == "." || userID == ".." ||
		strings.ContainsAny(userID, `/\`) || strings.ContainsRune(userID, 0) {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return filepath.Join(root, userID), nil
}
