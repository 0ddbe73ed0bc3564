package notify

import (
	"encoding/base64"
	"strings"

	"NotifyGate/tools/errs"
)

const cursorPrefix = "v1:"

// encodeCursor wraps the last-seen notification id into an opaque token.
func encodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + lastID))
}

// decodeCursor returns the id the page should continue before.
// Empty input means "from the newest".
func decodeCursor(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errs.ErrArgs.WrapMsg("bad cursor")
	}
	s := string(raw)
	if !strings.HasPrefix(s, cursorPrefix) {
		return "", errs.ErrArgs.WrapMsg("bad cursor version")
	}
	return strings.TrimPrefix(s, cursorPrefix), nil
}
