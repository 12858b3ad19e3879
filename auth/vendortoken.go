package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/httpclient"
	"golang.org/x/text/encoding/unicode"
)

type vendorTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// VendorAPIToken implements the Axis 360 access token exchange. The Basic
// credential is the UTF-16LE encoding of "user:password:prefix", a quirk of
// the vendor's .NET backend.
type VendorAPIToken struct {
	TokenUrl      string
	Username      string
	Password      string
	LibraryPrefix string
	cached        Token
}

func NewVendorAPIToken(tokenUrl string, username string, password string, libraryPrefix string) *VendorAPIToken {
	return &VendorAPIToken{TokenUrl: tokenUrl, Username: username, Password: password, LibraryPrefix: libraryPrefix}
}

func (v *VendorAPIToken) Get(ctx common.ExtendedContext, client *http.Client) (Token, error) {
	if v.cached.Valid() {
		return v.cached, nil
	}
	authHeader, err := v.basicHeader()
	if err != nil {
		return Token{}, err
	}
	var res vendorTokenResponse
	httpClient := httpclient.NewClient().WithHeaders("Authorization", authHeader)
	err = httpClient.PostJson(client, v.TokenUrl, struct{}{}, &res)
	if err != nil {
		return Token{}, fmt.Errorf("vendor token request failed: %w", err)
	}
	if res.AccessToken == "" {
		return Token{}, fmt.Errorf("vendor token response missing access_token")
	}
	v.cached = NewToken(res.TokenType+" "+res.AccessToken, time.Duration(res.ExpiresIn)*time.Second)
	ctx.Logger().Debug("acquired vendor token", "url", v.TokenUrl, "expiresIn", res.ExpiresIn)
	return v.cached, nil
}

func (v *VendorAPIToken) basicHeader() (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	raw, err := encoder.Bytes([]byte(v.Username + ":" + v.Password + ":" + v.LibraryPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to encode vendor credentials: %w", err)
	}
	return "Basic " + base64.StdEncoding.EncodeToString(raw), nil
}
