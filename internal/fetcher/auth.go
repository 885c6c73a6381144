package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Strategy names an authentication method.
type Strategy string

const (
	StrategyBasic Strategy = "basic"
	StrategyForm  Strategy = "form"
	StrategyAPI   Strategy = "api"
)

// Well known credential keys.
const (
	KeyUsername       = "username"
	KeyPassword       = "password"
	KeyUsernameField  = "username_field"
	KeyPasswordField  = "password_field"
	KeySubmitSelector = "submit_selector"
	KeyTokenField     = "token_field"
)

const (
	defaultSubmitSelector = `button[type="submit"]`
	defaultTokenField     = "token"
	formSettleDelay       = 2 * time.Second
)

// Credentials is the strategy specific key/value bag. Extra holds additional
// form fields submitted alongside the username and password.
type Credentials struct {
	Values map[string]string
	Extra  map[string]string
}

// AuthFailure explains why authentication did not succeed.
type AuthFailure int

const (
	AuthOK AuthFailure = iota
	AuthRejected
	AuthTransport
	AuthUnsupported
	AuthMissingCredentials
)

func (f AuthFailure) String() string {
	switch f {
	case AuthOK:
		return "ok"
	case AuthRejected:
		return "credentials rejected"
	case AuthTransport:
		return "transport failure"
	case AuthUnsupported:
		return "unsupported strategy"
	case AuthMissingCredentials:
		return "missing credentials"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of Authenticate. Err carries detail for
// transport failures and rejected responses.
type AuthResult struct {
	OK     bool
	Reason AuthFailure
	Err    error
}

func (r AuthResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Reason, r.Err)
	}
	return r.Reason.String()
}

func success() AuthResult { return AuthResult{OK: true, Reason: AuthOK} }

func failure(reason AuthFailure, err error) AuthResult {
	return AuthResult{Reason: reason, Err: err}
}

// Authenticate logs in with strategy so that later fetches through f carry
// the session. It never returns an error or panics; the reason in the
// result tells rejected credentials apart from transport failures.
func Authenticate(ctx context.Context, f Fetcher, loginURL string, strategy Strategy, creds Credentials, logger *slog.Logger) (res AuthResult) {
	logger = loggerOrDefault(logger).With("url", loginURL, "strategy", string(strategy))
	defer func() {
		if r := recover(); r != nil {
			res = failure(AuthTransport, fmt.Errorf("authentication panic: %v", r))
		}
		if res.OK {
			logger.Info("authenticated")
			return
		}
		logger.Warn("authentication failed", "reason", res.Reason.String(), "error", res.Err)
	}()

	u, err := ValidateURL(loginURL)
	if err != nil {
		return failure(AuthTransport, err)
	}
	static := Static(f)
	if static == nil {
		return failure(AuthUnsupported, errors.New("fetcher has no static backend"))
	}

	switch strategy {
	case StrategyBasic:
		return basicAuth(ctx, static, u.String(), creds)
	case StrategyForm:
		if b, ok := f.(*BrowserFetcher); ok {
			return renderedFormAuth(ctx, b, u.String(), creds)
		}
		return staticFormAuth(ctx, static, u.String(), creds)
	case StrategyAPI:
		return apiAuth(ctx, static, u.String(), creds)
	default:
		return failure(AuthUnsupported, fmt.Errorf("strategy %q", strategy))
	}
}

func requireKeys(creds Credentials, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if creds.Values[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func valueOr(creds Credentials, key, fallback string) string {
	if v := creds.Values[key]; v != "" {
		return v
	}
	return fallback
}

func basicAuth(ctx context.Context, f *HTTPFetcher, loginURL string, creds Credentials) AuthResult {
	if err := requireKeys(creds, KeyUsername, KeyPassword); err != nil {
		return failure(AuthMissingCredentials, err)
	}
	f.SetBasicAuth(url.UserPassword(creds.Values[KeyUsername], creds.Values[KeyPassword]))
	_, err := f.Fetch(ctx, loginURL, Options{})
	switch {
	case err == nil:
		return success()
	case IsKind(err, KindHTTPStatus):
		f.SetBasicAuth(nil)
		return failure(AuthRejected, err)
	default:
		f.SetBasicAuth(nil)
		return failure(AuthTransport, err)
	}
}

func formFields(creds Credentials) map[string]string {
	fields := make(map[string]string, len(creds.Extra)+2)
	for k, v := range creds.Extra {
		fields[k] = v
	}
	fields[valueOr(creds, KeyUsernameField, KeyUsername)] = creds.Values[KeyUsername]
	fields[valueOr(creds, KeyPasswordField, KeyPassword)] = creds.Values[KeyPassword]
	return fields
}

func staticFormAuth(ctx context.Context, f *HTTPFetcher, loginURL string, creds Credentials) AuthResult {
	if err := requireKeys(creds, KeyUsername, KeyPassword); err != nil {
		return failure(AuthMissingCredentials, err)
	}
	// The login page visit collects any session cookies the form expects.
	if _, err := f.Fetch(ctx, loginURL, Options{}); err != nil && !IsKind(err, KindHTTPStatus) {
		return failure(AuthTransport, err)
	}
	values := url.Values{}
	for k, v := range formFields(creds) {
		values.Set(k, v)
	}
	resp, err := f.postForm(ctx, loginURL, values)
	if err != nil {
		return failure(AuthTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(AuthRejected, &FetchError{Kind: KindHTTPStatus, URL: loginURL, StatusCode: resp.StatusCode})
	}
	return success()
}

func renderedFormAuth(ctx context.Context, b *BrowserFetcher, loginURL string, creds Credentials) AuthResult {
	if err := requireKeys(creds, KeyUsername, KeyPassword); err != nil {
		return failure(AuthMissingCredentials, err)
	}
	submit := valueOr(creds, KeySubmitSelector, defaultSubmitSelector)
	final, err := b.SubmitForm(ctx, loginURL, formFields(creds), submit, formSettleDelay)
	if err != nil {
		return failure(AuthTransport, err)
	}
	if strings.Contains(strings.ToLower(final), "login") {
		return failure(AuthRejected, fmt.Errorf("still on login page %s", final))
	}
	return success()
}

func apiAuth(ctx context.Context, f *HTTPFetcher, loginURL string, creds Credentials) AuthResult {
	if len(creds.Values) == 0 {
		return failure(AuthMissingCredentials, errors.New("empty credential payload"))
	}
	tokenField := valueOr(creds, KeyTokenField, defaultTokenField)
	payload := make(map[string]string, len(creds.Values))
	for k, v := range creds.Values {
		if k != KeyTokenField {
			payload[k] = v
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(AuthTransport, err)
	}
	resp, err := f.postJSON(ctx, loginURL, body)
	if err != nil {
		return failure(AuthTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(AuthRejected, &FetchError{Kind: KindHTTPStatus, URL: loginURL, StatusCode: resp.StatusCode})
	}

	var decoded map[string]any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		// A 2xx without a JSON body still counts as a successful login.
		return success()
	}
	if token, ok := decoded[tokenField].(string); ok && token != "" {
		f.SetHeader("Authorization", "Bearer "+token)
	}
	return success()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
