package resilience

import "time"

// JobRetryConfig is the policy of background jobs: maxAttempts tries,
// retrying every failure that is not permanent.
func JobRetryConfig(maxAttempts int, service string) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	cfg.InitialBackoff = time.Second
	cfg.ShouldRetry = RetryUnlessPermanent
	cfg.OnRetry = RetryLogger(service, "job")
	return cfg
}

// ProviderRetryConfig is the policy of outbound AI and HTTP calls, which retry
// only transient failures.
func ProviderRetryConfig(service, operation string) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.OnRetry = RetryLogger(service, operation)
	return cfg
}
