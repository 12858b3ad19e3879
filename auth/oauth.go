package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/httpclient"
)

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// OAuthClientCredentials implements the client_credentials grant used by the
// Koha REST API.
type OAuthClientCredentials struct {
	TokenUrl     string
	ClientID     string
	ClientSecret string
	cached       Token
}

func NewOAuthClientCredentials(tokenUrl string, clientId string, clientSecret string) *OAuthClientCredentials {
	return &OAuthClientCredentials{TokenUrl: tokenUrl, ClientID: clientId, ClientSecret: clientSecret}
}

func (o *OAuthClientCredentials) Get(ctx common.ExtendedContext, client *http.Client) (Token, error) {
	if o.cached.Valid() {
		return o.cached, nil
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	var res oauthTokenResponse
	err := httpclient.NewClient().PostFormJson(client, o.TokenUrl, form, &res)
	if err != nil {
		return Token{}, fmt.Errorf("oauth token request failed: %w", err)
	}
	if res.AccessToken == "" {
		return Token{}, fmt.Errorf("oauth token response missing access_token")
	}
	o.cached = NewToken(res.AccessToken, time.Duration(res.ExpiresIn)*time.Second)
	ctx.Logger().Debug("acquired oauth token", "url", o.TokenUrl, "expiresIn", res.ExpiresIn)
	return o.cached, nil
}
