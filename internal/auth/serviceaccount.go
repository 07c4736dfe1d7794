// SERVICE ACCOUNTS:
// The realtime database accepts OAuth2 bearer tokens minted for a service
// account. Getting one is a two-legged flow:
//
//  1. Sign a short JWT "assertion" (RS256) with the service account's
//     private key: iss=client_email, aud=token_uri, scope=<scopes>.
//  2. POST it to token_uri with grant_type=jwt-bearer and receive an
//     access token valid for about an hour.
//
// oauth2.ReuseTokenSource caches the token and only re-runs the exchange
// shortly before it expires.

package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DatabaseScopes are the scopes required by the Firebase Realtime Database REST API.
var DatabaseScopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = time.Hour
)

// ServiceAccount is the subset of a Google service-account key file we use.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount reads and parses a key file from disk.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading service account %s: %w", path, err)
	}
	return ParseServiceAccount(data)
}

// ParseServiceAccount decodes a key file and checks the fields we need.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("auth: decoding service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("auth: service account must have client_email and private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}
	return &sa, nil
}

// TokenSource returns a caching token source for the given scopes.
// client performs the token exchange; nil means http.DefaultClient.
func (sa *ServiceAccount) TokenSource(client *http.Client, scopes ...string) (oauth2.TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("auth: parsing service account key: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	src := &assertionTokenSource{
		account: sa,
		key:     key,
		scope:   strings.Join(scopes, " "),
		client:  client,
		now:     time.Now,
	}
	return oauth2.ReuseTokenSource(nil, src), nil
}

// assertionClaims is the JWT payload of the bearer assertion.
type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// assertionTokenSource performs one jwt-bearer exchange per Token call.
type assertionTokenSource struct {
	account *ServiceAccount
	key     *rsa.PrivateKey
	scope   string
	client  *http.Client
	now     func() time.Time
}

func (s *assertionTokenSource) Token() (*oauth2.Token, error) {
	now := s.now()

	c := assertionClaims{
		Scope: s.scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.account.ClientEmail,
			Audience:  jwt.ClaimStrings{s.account.TokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	if s.account.PrivateKeyID != "" {
		token.Header["kid"] = s.account.PrivateKeyID
	}
	assertion, err := token.SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("auth: signing assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("auth: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: token exchange failed with status %d: %s", resp.StatusCode, body)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("auth: decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("auth: token response has no access_token")
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
