// Package orcherr defines the sentinel error taxonomy shared across the
// bot orchestration core. Components wrap these with fmt.Errorf("...: %w", ...)
// so callers can still errors.Is against the taxonomy after annotation.
package orcherr

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrMarketClosed          = errors.New("market closed")
	ErrBrokerUnavailable     = errors.New("broker unavailable")
	ErrRateLimited           = errors.New("rate limited")
	ErrAdmissionTimeout      = errors.New("admission timeout")
	ErrDataUnavailable       = errors.New("data unavailable")
	ErrChartGenerationFailed = errors.New("chart generation failed")
	ErrAnalysisTimedOut      = errors.New("analysis timed out")
	ErrRiskRejected          = errors.New("risk rejected")
	ErrOwnershipAmbiguous    = errors.New("ownership ambiguous")
	ErrFatal                 = errors.New("fatal")
)
