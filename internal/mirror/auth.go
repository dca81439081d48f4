package mirror

import (
	"crypto/subtle"
	"encoding/base64"

	"github.com/cockroachdb/errors"
)

const authRealm = `Basic realm="Test"`

// AuthGate checks HTTP Basic credentials.
type AuthGate struct {
	expected string
}

// NewAuthGate returns a gate for the credentials. With both username and
// password empty every request passes.
func NewAuthGate(username, password string) *AuthGate {
	if username == "" && password == "" {
		return &AuthGate{}
	}
	return &AuthGate{
		expected: "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password)),
	}
}

// Enabled reports whether credentials are required.
func (a *AuthGate) Enabled() bool {
	return a.expected != ""
}

// Check returns nil when the Authorization header value is accepted. The
// error otherwise is marked ErrUnauthorized and its text is the 401 body.
func (a *AuthGate) Check(header string) error {
	if !a.Enabled() {
		return nil
	}
	if header == "" {
		return errors.Mark(errors.New("no auth header received"), ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(a.expected)) != 1 {
		return errors.Mark(errors.New(header+"not authenticated"), ErrUnauthorized)
	}
	return nil
}
