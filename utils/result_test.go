package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var successResult = Result[string]{value: "Success", err: nil}
var failedResult = Result[string]{
	err:       fmt.Errorf("Failed result"),
	Capture:   true,
	Retryable: true,
	details: &ErrorDetails{
		Code:    "failed_result",
		Message: "More details",
	},
}

type booleanTest struct {
	arg      Result[string]
	expected bool
}

var successTests = []booleanTest{
	{successResult, true},
	{failedResult, false},
}

func TestSuccess(t *testing.T) {
	for _, test := range successTests {
		assert.Equal(t, test.arg.Success(), test.expected)
	}
}

var failureTests = []booleanTest{
	{successResult, false},
	{failedResult, true},
}

func TestFailure(t *testing.T) {
	for _, test := range failureTests {
		assert.Equal(t, test.arg.Failure(), test.expected)
	}
}

func TestValue(t *testing.T) {
	assert.Equal(t, "Success", successResult.Value())
	assert.Equal(t, "", failedResult.Value())
}

func TestErrorMsg(t *testing.T) {
	assert.Equal(t, "", successResult.ErrorMsg())
	assert.Equal(t, "Failed result", failedResult.ErrorMsg())
}

func TestErrorDetails(t *testing.T) {
	assert.Equal(t, "failed_result", failedResult.ErrorCode())
	assert.Equal(t, "More details", failedResult.ErrorMessage())
	assert.Equal(t, "", successResult.ErrorCode())
	assert.Equal(t, "", successResult.ErrorMessage())
}

func TestAddErrorDetails(t *testing.T) {
	result := FailedResult[bool](fmt.Errorf("Failure")).AddErrorDetails("code", "message")
	assert.Equal(t, "code", result.ErrorCode())
	assert.Equal(t, "message", result.ErrorMessage())
}

func TestRetryableAndCapturableFlags(t *testing.T) {
	result := FailedResult[int](fmt.Errorf("Failure"))
	assert.True(t, result.IsRetryable())
	assert.True(t, result.IsCapturable())

	result = result.NonRetryable().NonCapturable()
	assert.False(t, result.IsRetryable())
	assert.False(t, result.IsCapturable())

	success := SuccessResult(42)
	assert.Equal(t, 42, success.Value())
	assert.Nil(t, success.Error())
}
