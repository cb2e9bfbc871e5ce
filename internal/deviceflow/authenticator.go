package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ghpages/internal/githubapi"
	"github.com/temirov/ghpages/internal/tokenstore"
)

const (
	deviceCodeEndpointConstant          = "https://github.com/login/device/code"
	accessTokenEndpointConstant         = "https://github.com/login/oauth/access_token"
	defaultClientIdentifierConstant     = "Ov23liE4n8FqXkR2pWgS"
	requiredScopesConstant              = "repo workflow"
	deviceCodeGrantTypeConstant         = "urn:ietf:params:oauth:grant-type:device_code"
	defaultPollIntervalSecondsConstant  = 5
	slowDownIntervalIncrementConstant   = 5 * time.Second
	pollingCeilingConstant              = 5 * time.Minute
	authorizationPendingErrorConstant   = "authorization_pending"
	slowDownErrorConstant               = "slow_down"
	expiredTokenErrorConstant           = "expired_token"
	accessDeniedErrorConstant           = "access_denied"
	repositoryScopeConstant             = "repo"
	workflowScopeConstant               = "workflow"
	loggerMissingMessageConstant        = "logger not configured"
	httpClientMissingMessageConstant    = "http client not configured"
	clockMissingMessageConstant         = "clock not configured"
	userInspectorMissingMessageConstant = "user inspector not configured"
	deviceCodeRequestTemplateConstant   = "device code request failed: %s"
	insufficientScopesTemplateConstant  = "token is missing required scopes, granted: %s"
	userCodePromptTemplateConstant      = "Open %s and enter the code %s to authorize GitHub Pages deployment.\n"
	browserOpenFailedMessageConstant    = "Unable to open browser, please visit the verification URL manually"
	pollNetworkRetryMessageConstant     = "Token poll failed, retrying"
	unexpectedPollErrorMessageConstant  = "Device flow terminated by server"
)

// Outcome names the terminal state of one authentication attempt.
type Outcome string

const (
	// OutcomeAuthenticated indicates a token was obtained and validated.
	OutcomeAuthenticated Outcome = "authenticated"
	// OutcomeDenied indicates the user rejected the authorization request.
	OutcomeDenied Outcome = "denied"
	// OutcomeExpired indicates the device code or the polling ceiling expired.
	OutcomeExpired Outcome = "expired"
	// OutcomeError indicates an unrecoverable server-side or scope failure.
	OutcomeError Outcome = "error"
)

// ErrLoggerNotConfigured indicates the authenticator was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrHTTPClientNotConfigured indicates the authenticator was built without an HTTP client.
var ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)

// ErrClockNotConfigured indicates the authenticator was built without a clock.
var ErrClockNotConfigured = errors.New(clockMissingMessageConstant)

// ErrUserInspectorNotConfigured indicates the authenticator was built without
// a user inspector for scope validation.
var ErrUserInspectorNotConfigured = errors.New(userInspectorMissingMessageConstant)

// DeviceAuthorization carries the server-issued codes for one login attempt.
type DeviceAuthorization struct {
	DeviceCode       string `json:"device_code"`
	UserCode         string `json:"user_code"`
	VerificationURI  string `json:"verification_uri"`
	IntervalSeconds  int    `json:"interval"`
	ExpiresInSeconds int    `json:"expires_in"`
}

// UserInspector resolves the authenticated user and granted scopes for a token.
type UserInspector interface {
	GetAuthenticatedUser(executionContext context.Context, accessToken string) (githubapi.AuthenticatedUser, error)
}

// Dependencies enumerates the collaborators required by the authenticator.
type Dependencies struct {
	Logger        *zap.Logger
	HTTPClient    githubapi.HTTPDoer
	Clock         Clock
	BrowserOpener BrowserOpener
	UserInspector UserInspector
	Output        io.Writer
}

// Configuration carries overridable endpoints and the OAuth client identifier.
type Configuration struct {
	ClientIdentifier  string
	DeviceCodeURL     string
	AccessTokenURL    string
	RequestedScopes   string
	PollingCeiling    time.Duration
	SuppressedBrowser bool
}

func (configuration *Configuration) applyDefaults() {
	if len(configuration.ClientIdentifier) == 0 {
		configuration.ClientIdentifier = defaultClientIdentifierConstant
	}
	if len(configuration.DeviceCodeURL) == 0 {
		configuration.DeviceCodeURL = deviceCodeEndpointConstant
	}
	if len(configuration.AccessTokenURL) == 0 {
		configuration.AccessTokenURL = accessTokenEndpointConstant
	}
	if len(configuration.RequestedScopes) == 0 {
		configuration.RequestedScopes = requiredScopesConstant
	}
	if configuration.PollingCeiling <= 0 {
		configuration.PollingCeiling = pollingCeilingConstant
	}
}

// Authenticator drives the device authorization grant to completion.
type Authenticator struct {
	logger        *zap.Logger
	httpClient    githubapi.HTTPDoer
	clock         Clock
	browserOpener BrowserOpener
	userInspector UserInspector
	output        io.Writer
	configuration Configuration
}

// NewAuthenticator validates dependencies and builds an authenticator.
func NewAuthenticator(dependencies Dependencies, configuration Configuration) (*Authenticator, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	if dependencies.Clock == nil {
		return nil, ErrClockNotConfigured
	}
	if dependencies.UserInspector == nil {
		return nil, ErrUserInspectorNotConfigured
	}
	if dependencies.BrowserOpener == nil {
		dependencies.BrowserOpener = SystemBrowserOpener{}
	}
	if dependencies.Output == nil {
		dependencies.Output = io.Discard
	}
	configuration.applyDefaults()
	return &Authenticator{
		logger:        dependencies.Logger,
		httpClient:    dependencies.HTTPClient,
		clock:         dependencies.Clock,
		browserOpener: dependencies.BrowserOpener,
		userInspector: dependencies.UserInspector,
		output:        dependencies.Output,
		configuration: configuration,
	}, nil
}

type tokenPollResponse struct {
	AccessToken      string `json:"access_token"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticate runs one full device-flow attempt. A nil token with a nil
// error means the attempt resolved without a usable token (denied or
// expired); the outcome distinguishes the terminal states.
func (authenticator *Authenticator) Authenticate(executionContext context.Context) (*tokenstore.AccessToken, Outcome, error) {
	deviceAuthorization, authorizationError := authenticator.requestDeviceCode(executionContext)
	if authorizationError != nil {
		return nil, OutcomeError, authorizationError
	}

	authenticator.presentUserCode(deviceAuthorization)

	pollResponse, pollOutcome, pollError := authenticator.pollForToken(executionContext, deviceAuthorization)
	if pollOutcome != OutcomeAuthenticated {
		return nil, pollOutcome, pollError
	}

	authenticatedUser, userError := authenticator.userInspector.GetAuthenticatedUser(executionContext, pollResponse.AccessToken)
	if userError != nil {
		return nil, OutcomeError, userError
	}
	if !authenticatedUser.HasScope(repositoryScopeConstant) || !authenticatedUser.HasScope(workflowScopeConstant) {
		return nil, OutcomeError, fmt.Errorf(insufficientScopesTemplateConstant, strings.Join(authenticatedUser.Scopes, ", "))
	}

	accessToken := tokenstore.AccessToken{
		Token:    pollResponse.AccessToken,
		Scopes:   authenticatedUser.Scopes,
		CachedAt: authenticator.clock.Now(),
	}
	return &accessToken, OutcomeAuthenticated, nil
}

func (authenticator *Authenticator) requestDeviceCode(executionContext context.Context) (DeviceAuthorization, error) {
	formValues := url.Values{}
	formValues.Set("client_id", authenticator.configuration.ClientIdentifier)
	formValues.Set("scope", authenticator.configuration.RequestedScopes)

	responseBody, requestError := authenticator.postForm(executionContext, authenticator.configuration.DeviceCodeURL, formValues)
	if requestError != nil {
		return DeviceAuthorization{}, fmt.Errorf(deviceCodeRequestTemplateConstant, requestError)
	}

	var errorEnvelope struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(responseBody, &errorEnvelope) == nil && len(errorEnvelope.Error) > 0 {
		return DeviceAuthorization{}, fmt.Errorf(deviceCodeRequestTemplateConstant, errorEnvelope.Error)
	}

	var deviceAuthorization DeviceAuthorization
	if decodeError := json.Unmarshal(responseBody, &deviceAuthorization); decodeError != nil {
		return DeviceAuthorization{}, fmt.Errorf(deviceCodeRequestTemplateConstant, decodeError)
	}
	if deviceAuthorization.IntervalSeconds <= 0 {
		deviceAuthorization.IntervalSeconds = defaultPollIntervalSecondsConstant
	}
	return deviceAuthorization, nil
}

func (authenticator *Authenticator) presentUserCode(deviceAuthorization DeviceAuthorization) {
	fmt.Fprintf(authenticator.output, userCodePromptTemplateConstant, deviceAuthorization.VerificationURI, deviceAuthorization.UserCode)
	if authenticator.configuration.SuppressedBrowser {
		return
	}
	if browserError := authenticator.browserOpener.OpenURL(deviceAuthorization.VerificationURI); browserError != nil {
		authenticator.logger.Warn(browserOpenFailedMessageConstant,
			zap.String("verification_uri", deviceAuthorization.VerificationURI),
			zap.Error(browserError),
		)
	}
}

func (authenticator *Authenticator) pollForToken(executionContext context.Context, deviceAuthorization DeviceAuthorization) (tokenPollResponse, Outcome, error) {
	pollInterval := time.Duration(deviceAuthorization.IntervalSeconds) * time.Second
	pollingDeadline := authenticator.clock.Now().Add(authenticator.configuration.PollingCeiling)

	formValues := url.Values{}
	formValues.Set("client_id", authenticator.configuration.ClientIdentifier)
	formValues.Set("device_code", deviceAuthorization.DeviceCode)
	formValues.Set("grant_type", deviceCodeGrantTypeConstant)

	for {
		if authenticator.clock.Now().After(pollingDeadline) {
			return tokenPollResponse{}, OutcomeExpired, nil
		}
		if sleepError := authenticator.clock.Sleep(executionContext, pollInterval); sleepError != nil {
			return tokenPollResponse{}, OutcomeError, sleepError
		}

		responseBody, requestError := authenticator.postForm(executionContext, authenticator.configuration.AccessTokenURL, formValues)
		if requestError != nil {
			authenticator.logger.Warn(pollNetworkRetryMessageConstant, zap.Error(requestError))
			continue
		}

		var pollResponse tokenPollResponse
		if decodeError := json.Unmarshal(responseBody, &pollResponse); decodeError != nil {
			authenticator.logger.Warn(pollNetworkRetryMessageConstant, zap.Error(decodeError))
			continue
		}

		if len(pollResponse.AccessToken) > 0 {
			return pollResponse, OutcomeAuthenticated, nil
		}

		switch pollResponse.Error {
		case authorizationPendingErrorConstant:
			continue
		case slowDownErrorConstant:
			pollInterval += slowDownIntervalIncrementConstant
			continue
		case expiredTokenErrorConstant:
			return tokenPollResponse{}, OutcomeExpired, nil
		case accessDeniedErrorConstant:
			return tokenPollResponse{}, OutcomeDenied, nil
		default:
			authenticator.logger.Warn(unexpectedPollErrorMessageConstant,
				zap.String("error", pollResponse.Error),
				zap.String("error_description", pollResponse.ErrorDescription),
			)
			return tokenPollResponse{}, OutcomeError, nil
		}
	}
}

func (authenticator *Authenticator) postForm(executionContext context.Context, endpointURL string, formValues url.Values) ([]byte, error) {
	request, requestCreationError := http.NewRequestWithContext(executionContext, http.MethodPost, endpointURL, strings.NewReader(formValues.Encode()))
	if requestCreationError != nil {
		return nil, requestCreationError
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, requestError := authenticator.httpClient.Do(request)
	if requestError != nil {
		return nil, requestError
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, readError
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d", response.StatusCode)
	}
	return responseBody, nil
}
