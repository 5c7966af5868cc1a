package imap

import (
	"encoding/base64"
	"encoding/json"
)

// cursor is the folder sync position handed back to callers as an opaque
// token. When neither UIDNEXT nor the message count moved since the cursor
// was minted, the folder's thread set cannot have changed and the listing is
// answered without running THREAD.
type cursor struct {
	UIDNext  uint32 `json:"uid_next"`
	Messages uint32 `json:"messages"`
}

func encodeCursor(c cursor) string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor parses a cursor token. A malformed or empty token decodes to
// the zero cursor, which never matches a live folder and forces a full
// listing.
func decodeCursor(token string) cursor {
	var c cursor
	if token == "" {
		return c
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return cursor{}
	}
	return c
}
