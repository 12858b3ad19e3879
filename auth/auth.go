package auth

import (
	"net/http"
	"time"

	"github.com/indexdata/patronlink/common"
)

// expiry safety margin so a token never dies mid-request
const tokenExpiryMargin = 5 * time.Second

type Token struct {
	Value   string
	Expires time.Time
}

func (t *Token) Valid() bool {
	return t.Value != "" && time.Now().Before(t.Expires)
}

func NewToken(value string, expiresIn time.Duration) Token {
	return Token{
		Value:   value,
		Expires: time.Now().Add(expiresIn - tokenExpiryMargin),
	}
}

// TokenSource yields a vendor API token, re-acquiring it when the cached one
// expired. Implementations are not safe for concurrent use, each request
// handler owns its driver instance.
type TokenSource interface {
	Get(ctx common.ExtendedContext, client *http.Client) (Token, error)
}
