package authbridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// DefaultTokenURL is the upstream identity provider's token endpoint.
	DefaultTokenURL = "https://secure.soundcloud.com/oauth/token"
	// DefaultAuthorizeURL is the upstream identity provider's consent page.
	DefaultAuthorizeURL = "https://secure.soundcloud.com/authorize"

	// AccessTokenCookieName and RefreshTokenCookieName carry the session
	// credentials back to the browser after a successful exchange.
	AccessTokenCookieName  = "sc_oauth_token"
	RefreshTokenCookieName = "sc_oauth_refresh_token"

	cookieMaxAgeSeconds  = 30 * 24 * 60 * 60
	cookiePath           = "/"
	postExchangeRedirect = "/"

	grantTypeAuthorizationCode = "authorization_code"
	responseTypeCode           = "code"
	stateByteLength            = 16

	formFieldGrantType    = "grant_type"
	formFieldClientID     = "client_id"
	formFieldClientSecret = "client_secret"
	formFieldRedirectURI  = "redirect_uri"
	formFieldCode         = "code"

	queryParameterCode         = "code"
	queryParameterClientID     = "client_id"
	queryParameterRedirectURI  = "redirect_uri"
	queryParameterResponseType = "response_type"
	queryParameterState        = "state"

	headerNameContentType  = "Content-Type"
	headerNameAccept       = "Accept"
	headerNameCacheControl = "Cache-Control"
	contentTypeForm        = "application/x-www-form-urlencoded"
	acceptJSONCharsetUTF8  = "application/json; charset=utf-8"
	cacheControlNoCache    = "no-cache"

	errorMessageMethodNotAllowed   = "Method Not Allowed"
	errorMessageMissingCode        = "authorization code is required"
	errorMessageExchangeFailed     = "failed to exchange token"
	errorMessageMissingClientID    = "oauth client id is required"
	errorMessageMissingSecret      = "oauth client secret is required"
	errorMessageMissingRedirectURI = "oauth redirect uri is required"
	errorMessageEmptyExchangeCode  = "authorization code must not be empty"

	logMessageExchangeFailure = "oauth token exchange failed"
	logMessageSessionStarted  = "oauth session established"

	responseFieldError = "error"

	exchangeTimeout = 15 * time.Second
)

// ErrMissingClientID indicates the exchanger was built without a client id.
var ErrMissingClientID = errors.New(errorMessageMissingClientID)

// ErrMissingClientSecret indicates the exchanger was built without a secret.
var ErrMissingClientSecret = errors.New(errorMessageMissingSecret)

// ErrMissingRedirectURI indicates the exchanger was built without the
// registered callback location.
var ErrMissingRedirectURI = errors.New(errorMessageMissingRedirectURI)

// ErrEmptyExchangeCode indicates Exchange was called without a code.
var ErrEmptyExchangeCode = errors.New(errorMessageEmptyExchangeCode)

// TokenPair is the credential pair returned by the identity provider.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Config carries the identity-provider settings for an Exchanger.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	AuthorizeURL string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Exchanger exchanges OAuth authorization codes for session token pairs and
// installs them as browser cookies.
type Exchanger struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	authorizeURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewExchanger validates the configuration and constructs an Exchanger.
func NewExchanger(configuration Config) (*Exchanger, error) {
	if strings.TrimSpace(configuration.ClientID) == "" {
		return nil, ErrMissingClientID
	}
	if strings.TrimSpace(configuration.ClientSecret) == "" {
		return nil, ErrMissingClientSecret
	}
	if strings.TrimSpace(configuration.RedirectURI) == "" {
		return nil, ErrMissingRedirectURI
	}

	tokenURL := configuration.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	authorizeURL := configuration.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = DefaultAuthorizeURL
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchangeTimeout}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Exchanger{
		clientID:     configuration.ClientID,
		clientSecret: configuration.ClientSecret,
		redirectURI:  configuration.RedirectURI,
		tokenURL:     tokenURL,
		authorizeURL: authorizeURL,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// NewState returns a random anti-forgery value for the authorize redirect.
func NewState() (string, error) {
	stateBytes := make([]byte, stateByteLength)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(stateBytes), nil
}

// AuthorizeRedirectURL builds the consent-page URL the login flow redirects to.
func (exchanger *Exchanger) AuthorizeRedirectURL(state string) string {
	queryValues := url.Values{}
	queryValues.Set(queryParameterClientID, exchanger.clientID)
	queryValues.Set(queryParameterRedirectURI, exchanger.redirectURI)
	queryValues.Set(queryParameterResponseType, responseTypeCode)
	queryValues.Set(queryParameterState, state)
	return exchanger.authorizeURL + "?" + queryValues.Encode()
}

// Exchange trades an authorization code for a token pair.
func (exchanger *Exchanger) Exchange(ctx context.Context, authorizationCode string) (TokenPair, error) {
	if authorizationCode == "" {
		return TokenPair{}, ErrEmptyExchangeCode
	}

	formValues := url.Values{}
	formValues.Set(formFieldGrantType, grantTypeAuthorizationCode)
	formValues.Set(formFieldClientID, exchanger.clientID)
	formValues.Set(formFieldClientSecret, exchanger.clientSecret)
	formValues.Set(formFieldRedirectURI, exchanger.redirectURI)
	formValues.Set(formFieldCode, authorizationCode)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, exchanger.tokenURL, strings.NewReader(formValues.Encode()))
	if err != nil {
		return TokenPair{}, fmt.Errorf("build token exchange request: %w", err)
	}
	request.Header.Set(headerNameContentType, contentTypeForm)
	request.Header.Set(headerNameAccept, acceptJSONCharsetUTF8)

	response, err := exchanger.httpClient.Do(request)
	if err != nil {
		return TokenPair{}, fmt.Errorf("execute token exchange: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return TokenPair{}, fmt.Errorf("token exchange failed: %s", response.Status)
	}

	var tokenPair TokenPair
	if err := json.NewDecoder(response.Body).Decode(&tokenPair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token exchange response: %w", err)
	}
	return tokenPair, nil
}

// HandleCallback processes the identity provider's callback redirect. It
// accepts only GET requests, requires the code query parameter, and on a
// successful exchange installs the session cookies before redirecting to the
// application root.
func (exchanger *Exchanger) HandleCallback(ginContext *gin.Context) {
	if ginContext.Request.Method != http.MethodGet {
		ginContext.String(http.StatusMethodNotAllowed, errorMessageMethodNotAllowed)
		return
	}

	authorizationCode := ginContext.Query(queryParameterCode)
	if authorizationCode == "" {
		ginContext.JSON(http.StatusBadRequest, gin.H{responseFieldError: errorMessageMissingCode})
		return
	}

	tokenPair, err := exchanger.Exchange(ginContext.Request.Context(), authorizationCode)
	if err != nil {
		exchanger.logger.Error(logMessageExchangeFailure, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, gin.H{responseFieldError: errorMessageExchangeFailed})
		return
	}

	ginContext.SetSameSite(http.SameSiteLaxMode)
	ginContext.SetCookie(AccessTokenCookieName, tokenPair.AccessToken, cookieMaxAgeSeconds, cookiePath, "", true, false)
	ginContext.SetCookie(RefreshTokenCookieName, tokenPair.RefreshToken, cookieMaxAgeSeconds, cookiePath, "", true, false)

	exchanger.logger.Info(logMessageSessionStarted, zap.Int("expires_in", tokenPair.ExpiresIn))
	ginContext.Header(headerNameCacheControl, cacheControlNoCache)
	ginContext.Redirect(http.StatusFound, postExchangeRedirect)
}
