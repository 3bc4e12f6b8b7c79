package provisioning

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"gmab/internal/errdefs"
	"gmab/internal/logging"
)

const requestTimeout = 30 * time.Second

// Version is reported to provider APIs that accept an application name
var Version = "dev"

// newHTTPClient returns the transport shared by the REST-based adapters.
// Only idempotent requests are retried, with the library's default policy;
// a POST that creates an instance is sent exactly once. The final response
// is handed back unchanged so the SDK can decode the provider's error.
func newHTTPClient() *http.Client {
	client := retryablehttp.NewClient()
	client.Logger = &zapLeveledLogger{logger: logging.Logger().Sugar()}
	client.HTTPClient.Timeout = requestTimeout
	client.CheckRetry = retryIdempotent
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &http.Client{
		Transport: &singleAttemptMarker{next: &retryablehttp.RoundTripper{Client: client}},
	}
}

type singleAttemptKey struct{}

// singleAttemptMarker flags non-idempotent requests for retryIdempotent;
// CheckRetry only sees the request context, not the method.
type singleAttemptMarker struct {
	next http.RoundTripper
}

func (m *singleAttemptMarker) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
	default:
		req = req.WithContext(context.WithValue(req.Context(), singleAttemptKey{}, true))
	}
	return m.next.RoundTrip(req)
}

func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if once, _ := ctx.Value(singleAttemptKey{}).(bool); once {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// zapLeveledLogger adapts zap to retryablehttp.LeveledLogger
type zapLeveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

func notFound(provider, idOrLabel string) error {
	return errdefs.NotFound("no %s instance with ID or label '%s'", provider, idOrLabel)
}
