package soundcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURLString = "https://api.soundcloud.com"

	resolvePath           = "/resolve"
	userPathFormat        = "/users/%d"
	followersPathFormat   = "/users/%d/followers"
	followingsPathFormat  = "/users/%d/followings"
	likedTracksPathFormat = "/users/%d/likes/tracks"

	resolveURLQueryKey          = "url"
	limitQueryKey               = "limit"
	offsetQueryKey              = "offset"
	accessQueryKey              = "access"
	accessPlayableValue         = "playable"
	linkedPartitioningQueryKey  = "linked_partitioning"
	linkedPartitioningValueTrue = "true"

	authorizationHeaderName   = "Authorization"
	authorizationSchemePrefix = "OAuth "
	acceptHeaderName          = "accept"
	acceptHeaderValue         = "application/json; charset=utf-8"

	operationResolve     = "resolve profile"
	operationUserDetails = "fetch user details"
	operationFollowers   = "fetch followers"
	operationFollowings  = "fetch followings"
	operationLikedTracks = "fetch liked tracks"

	errMessageMissingToken = "bearer token is empty"
	errMessageNonPositive  = "user id must be positive"

	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultHTTPTimeout           = 15 * time.Second
	maxResponseBytes             = 4 * 1024 * 1024

	// MaxPageLimit is the upstream cap on page sizes for relationship collections.
	MaxPageLimit = 200
)

var (
	errMissingToken      = errors.New(errMessageMissingToken)
	errNonPositiveUserID = errors.New(errMessageNonPositive)
)

// StatusError reports a non-success upstream response. Callers inspect it to
// decide whether a failure aborts an analysis or is skipped as best effort.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
}

// Error renders the failed operation together with the upstream status line.
func (statusError *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", statusError.Operation, statusError.StatusCode, statusError.Status)
}

// TokenProvider supplies the bearer credential attached to every request.
type TokenProvider func() string

// Config customizes a Client instance.
type Config struct {
	BaseURL       string
	HTTPClient    *http.Client
	Token         string
	TokenProvider TokenProvider
	Logger        *zap.Logger
}

// Client wraps the upstream REST API with bearer-style authorization and
// typed failures for non-2xx responses.
type Client struct {
	httpClient    *http.Client
	baseURL       *url.URL
	tokenProvider TokenProvider
	logger        *zap.Logger

	resolveCache map[string]Account
	cacheMutex   sync.RWMutex
	flightGroup  singleflight.Group
}

// NewClient constructs a Client with tuned transport defaults.
func NewClient(configuration Config) (*Client, error) {
	baseURLString := configuration.BaseURL
	if strings.TrimSpace(baseURLString) == "" {
		baseURLString = defaultBaseURLString
	}
	parsedBaseURL, err := url.Parse(baseURLString)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout, Transport: defaultTransport()}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultHTTPTimeout
	}

	tokenProvider := configuration.TokenProvider
	if tokenProvider == nil {
		staticToken := configuration.Token
		tokenProvider = func() string { return staticToken }
	}

	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		httpClient:    httpClient,
		baseURL:       parsedBaseURL,
		tokenProvider: tokenProvider,
		logger:        logger,
		resolveCache:  make(map[string]Account),
	}
	return client, nil
}

// Resolve turns a canonical profile URL into its upstream account. Repeated
// resolutions of the same URL within one process are served from cache and
// collapsed through singleflight.
func (client *Client) Resolve(ctx context.Context, profileURL string) (Account, error) {
	client.cacheMutex.RLock()
	if cached, exists := client.resolveCache[profileURL]; exists {
		client.cacheMutex.RUnlock()
		return cached, nil
	}
	client.cacheMutex.RUnlock()

	resultChannel := client.flightGroup.DoChan(profileURL, func() (interface{}, error) {
		queryValues := url.Values{}
		queryValues.Set(resolveURLQueryKey, profileURL)

		var account Account
		if fetchErr := client.getJSON(ctx, operationResolve, resolvePath, queryValues, &account); fetchErr != nil {
			return Account{}, fetchErr
		}
		client.cacheMutex.Lock()
		client.resolveCache[profileURL] = account
		client.cacheMutex.Unlock()
		return account, nil
	})

	select {
	case <-ctx.Done():
		return Account{}, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			return Account{}, result.Err
		}
		account, _ := result.Val.(Account)
		return account, nil
	}
}

// User fetches the account snapshot including follower and following totals.
func (client *Client) User(ctx context.Context, userID int64) (Account, error) {
	if userID <= 0 {
		return Account{}, errNonPositiveUserID
	}
	var account Account
	if err := client.getJSON(ctx, operationUserDetails, fmt.Sprintf(userPathFormat, userID), nil, &account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Followers fetches one page of follower accounts for the user.
func (client *Client) Followers(ctx context.Context, userID int64, limit int) ([]Account, error) {
	if userID <= 0 {
		return nil, errNonPositiveUserID
	}
	queryValues := url.Values{}
	queryValues.Set(limitQueryKey, strconv.Itoa(clampPageLimit(limit)))

	var page accountPage
	if err := client.getJSON(ctx, operationFollowers, fmt.Sprintf(followersPathFormat, userID), queryValues, &page); err != nil {
		return nil, err
	}
	return page.Collection, nil
}

// Followings fetches one page of followed accounts for the user, resuming at
// the provided offset.
func (client *Client) Followings(ctx context.Context, userID int64, limit int, offset int) ([]Account, error) {
	if userID <= 0 {
		return nil, errNonPositiveUserID
	}
	queryValues := url.Values{}
	queryValues.Set(limitQueryKey, strconv.Itoa(clampPageLimit(limit)))
	if offset > 0 {
		queryValues.Set(offsetQueryKey, strconv.Itoa(offset))
	}

	var page accountPage
	if err := client.getJSON(ctx, operationFollowings, fmt.Sprintf(followingsPathFormat, userID), queryValues, &page); err != nil {
		return nil, err
	}
	return page.Collection, nil
}

// LikedTracks fetches the most recent liked tracks for the user, bounded to a
// small page to limit aggregation volume.
func (client *Client) LikedTracks(ctx context.Context, userID int64, limit int) ([]Track, error) {
	if userID <= 0 {
		return nil, errNonPositiveUserID
	}
	queryValues := url.Values{}
	queryValues.Set(accessQueryKey, accessPlayableValue)
	queryValues.Set(limitQueryKey, strconv.Itoa(clampPageLimit(limit)))
	queryValues.Set(linkedPartitioningQueryKey, linkedPartitioningValueTrue)

	var page trackPage
	if err := client.getJSON(ctx, operationLikedTracks, fmt.Sprintf(likedTracksPathFormat, userID), queryValues, &page); err != nil {
		return nil, err
	}
	return page.Collection, nil
}

func (client *Client) getJSON(ctx context.Context, operation string, requestPath string, queryValues url.Values, target any) error {
	token := strings.TrimSpace(client.tokenProvider())
	if token == "" {
		return fmt.Errorf("%s: %w", operation, errMissingToken)
	}

	requestURL := client.baseURL.ResolveReference(&url.URL{Path: requestPath})
	if len(queryValues) > 0 {
		requestURL.RawQuery = queryValues.Encode()
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	httpRequest.Header.Set(authorizationHeaderName, authorizationSchemePrefix+token)
	httpRequest.Header.Set(acceptHeaderName, acceptHeaderValue)

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResponse.Body, 1024))
		_ = httpResponse.Body.Close()
	}()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		client.logger.Debug("upstream request failed",
			zap.String("operation", operation),
			zap.String("url", requestURL.String()),
			zap.Int("status", httpResponse.StatusCode),
		)
		return &StatusError{Operation: operation, StatusCode: httpResponse.StatusCode, Status: httpResponse.Status}
	}

	limitedReader := io.LimitReader(httpResponse.Body, maxResponseBytes)
	responseBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if err := json.Unmarshal(responseBytes, target); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func clampPageLimit(limit int) int {
	if limit <= 0 || limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}
