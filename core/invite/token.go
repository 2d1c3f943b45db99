package invite

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	salt    = []byte("hulab.core.invite.token")
	nowFunc = time.Now // mockable

	// set from config by NewService
	secretKey          []byte
	inviteTimeoutDelta time.Duration

	// errors
	ErrInvalidToken = errors.New("invalid invitation token")
	ErrTokenExpired = errors.New("invitation token expired")
)

// MakeToken generates the signed response token mailed to the invitee.
// The token binds the invitation's identity, so re-issuing an invitation
// invalidates tokens from earlier ones; a responded invitation rejects its
// own token through the pending check instead.
func MakeToken(inv Invitation) string {
	return makeTokenWithTimestamp(inv, numDaysSince2001(nowFunc()))
}

// verifyToken checks a response token for the given invitation.
func verifyToken(inv Invitation, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}
	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that the token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(makeTokenWithTimestamp(inv, ts)), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(inviteTimeoutDelta/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(inv Invitation, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, sign(hashValue(inv, ts)))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val []byte) string {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(inv Invitation, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(inv.ID)
	val.WriteString(inv.InviteeEmail)
	val.WriteString(inv.Role)
	if !inv.CreatedAt.IsZero() {
		val.WriteString(inv.CreatedAt.String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
