package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/easygithub/easygithub/pkg/integrations"
)

// DefaultClientID is the OAuth App Client ID used by the device flow.
// It is public; the device flow needs no client secret.
//
// To use your own OAuth App, set GITHUB_OAUTH_CLIENT_ID.
const DefaultClientID = "Ov23liEasyGithubCLI01"

const (
	oauthScope      = "read:user repo"
	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
	minPollInterval = 5
	slowDownStep    = 5
)

// OAuthClient handles the GitHub OAuth device flow.
type OAuthClient struct {
	config  OAuthConfig
	http    *integrations.Client
	baseURL string
}

// NewOAuthClient creates a new OAuth client.
func NewOAuthClient(config OAuthConfig) *OAuthClient {
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	base := strings.TrimRight(config.BaseURL, "/")
	if base == "" {
		base = webURL
	}
	return &OAuthClient{
		config:  config,
		http:    integrations.NewClient(nil, "", 0, map[string]string{"Accept": "application/json"}),
		baseURL: base,
	}
}

// DeviceCodeResponse contains the response from requesting a device code.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// OAuthError is an error reported by the OAuth endpoints.
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// RequestDeviceCode initiates the device authorization flow.
// The user must visit the VerificationURI and enter the UserCode.
func (c *OAuthClient) RequestDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	data := url.Values{
		"client_id": {c.config.ClientID},
		"scope":     {oauthScope},
	}
	var result DeviceCodeResponse
	if err := c.post(ctx, "/login/device/code", data, &result); err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}
	if result.DeviceCode == "" {
		return nil, fmt.Errorf("request device code: empty response")
	}
	return &result, nil
}

// PollForToken polls GitHub for the access token after user authorization.
// It respects the interval from the device code response and returns once the
// user authorizes, denies, or the code expires.
func (c *OAuthClient) PollForToken(ctx context.Context, deviceCode string, interval int) (*OAuthToken, error) {
	return c.poll(ctx, deviceCode, time.Duration(max(interval, minPollInterval))*time.Second)
}

func (c *OAuthClient) poll(ctx context.Context, deviceCode string, every time.Duration) (*OAuthToken, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			token, err := c.checkDeviceToken(ctx, deviceCode)
			if err == nil {
				return token, nil
			}
			oe, ok := err.(*OAuthError)
			if !ok {
				return nil, err
			}
			switch oe.Code {
			case "authorization_pending":
				continue
			case "slow_down":
				every += slowDownStep * time.Second
				ticker.Reset(every)
				continue
			}
			return nil, oe
		}
	}
}

// checkDeviceToken attempts to exchange the device code for a token.
func (c *OAuthClient) checkDeviceToken(ctx context.Context, deviceCode string) (*OAuthToken, error) {
	data := url.Values{
		"client_id":   {c.config.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	var result oauthResponse
	if err := c.post(ctx, "/login/oauth/access_token", data, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &OAuthError{Code: result.Error, Description: result.ErrorDesc}
	}
	return &OAuthToken{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		Scope:       result.Scope,
	}, nil
}

func (c *OAuthClient) post(ctx context.Context, path string, data url.Values, v any) error {
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	return c.http.Post(ctx, c.baseURL+path, headers, strings.NewReader(data.Encode()), v)
}
