package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledZap adapts zap to retryablehttp. Errors are logged as warnings
// because the request is usually retried.
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debugw(msg, keysAndValues...)
}

// ClientConfig tunes the HTTP client used to reach review providers.
type ClientConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultClientConfig returns the settings used in production.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      20 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 10 * time.Second,
	}
}

// NewHTTPClient returns an http.Client that retries connection errors and 5xx
// responses. 429 is not retried: the submission fails, is logged and stays
// untracked, and core NATS does not redeliver the job.
func NewHTTPClient(cfg ClientConfig, logger *zap.Logger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZap{logger.Named("http").Sugar()})
	retryClient.CheckRetry = retryPolicy

	client := retryClient.StandardClient()
	client.Timeout = cfg.Timeout
	return client
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
