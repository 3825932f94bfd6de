package resilience

import "time"

// RetryForAttempts returns the default retry policy with maxRetries retries
// after the first attempt. Negative values disable retries.
func RetryForAttempts(maxRetries int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = max(maxRetries, 0) + 1
	return cfg
}

// BreakerFor returns a breaker config with the given threshold and reset
// timeout, falling back to defaults for non-positive values.
func BreakerFor(failureThreshold int, resetTimeout time.Duration) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeout > 0 {
		cfg.ResetTimeout = resetTimeout
	}
	return cfg
}
