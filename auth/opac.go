package auth

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/httpclient"
)

var logoutLinkPattern = regexp.MustCompile(`(?i)href="[^"]*logout[^"]*"`)

// OpacSession is an authenticated browser session against a vendor OPAC.
// Outcomes are read from page markers, the OPAC answers 200 either way.
type OpacSession struct {
	BaseUrl  string
	Client   *http.Client
	http     *httpclient.HttpClient
	loggedIn bool
}

func NewOpacSession(baseUrl string, timeout time.Duration) (*OpacSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &OpacSession{
		BaseUrl: baseUrl,
		Client:  &http.Client{Jar: jar, Timeout: timeout},
		http:    httpclient.NewClient(),
	}, nil
}

// Login posts credentials to the OPAC login page. Success is the presence of
// a logout link in the returned page.
func (s *OpacSession) Login(ctx common.ExtendedContext, username string, password string) error {
	form := url.Values{}
	form.Set("koha_login_context", "opac")
	form.Set("userid", username)
	form.Set("password", password)
	body, err := s.http.PostFormBody(s.Client, s.BaseUrl+"/cgi-bin/koha/opac-user.pl", form)
	if err != nil {
		return fmt.Errorf("opac login request failed: %w", err)
	}
	if !logoutLinkPattern.Match(body) {
		return fmt.Errorf("opac login rejected")
	}
	s.loggedIn = true
	ctx.Logger().Debug("opac session established", "url", s.BaseUrl)
	return nil
}

func (s *OpacSession) LoggedIn() bool {
	return s.loggedIn
}

func (s *OpacSession) Get(ctx common.ExtendedContext, path string) ([]byte, error) {
	return s.http.GetBody(s.Client, s.BaseUrl+path)
}

func (s *OpacSession) PostForm(ctx common.ExtendedContext, path string, form url.Values) ([]byte, error) {
	return s.http.PostFormBody(s.Client, s.BaseUrl+path, form)
}
