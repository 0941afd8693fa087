package utils

import "github.com/getsentry/sentry-go"

// CaptureErrorResult reports a failed result with its error details attached.
func CaptureErrorResult(errResult AnyResult) {
	CaptureErrorResultWithExtra(errResult, "", nil)
}

// CaptureErrorResultWithExtra attaches one additional context value, typically
// the shop domain the failure belongs to.
func CaptureErrorResultWithExtra(errResult AnyResult, extraKey string, extraValue any) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_code", errResult.ErrorCode())
		scope.SetExtra("error_message", errResult.ErrorMessage())

		if extraKey != "" {
			scope.SetExtra(extraKey, extraValue)
		}

		sentry.CaptureException(errResult.Error())
	})
}

func CaptureError(err error) {
	sentry.CaptureException(err)
}
