package domainerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(CodeNotFound, "record not found")
	wrapped := fmt.Errorf("load: %w", base)

	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(wrapped, CodeValidation))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, CodeConcurrency, "transaction aborted")

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "transaction aborted: context deadline exceeded", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.False(t, IsDomain(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeConcurrency, "lock wait exceeded")))
	assert.True(t, Retryable(New(CodeTimeout, "timeout")))
	assert.False(t, Retryable(New(CodeValidation, "percentage exceeded")))
	assert.False(t, Retryable(New(CodeInvalidState, "transfer already executed")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:             http.StatusBadRequest,
		CodeInvalidTransferRequest: http.StatusBadRequest,
		CodeValidation:             http.StatusUnprocessableEntity,
		CodeNotFound:               http.StatusNotFound,
		CodeForbidden:              http.StatusForbidden,
		CodeInvalidState:           http.StatusConflict,
		CodeConcurrency:            http.StatusConflict,
		CodeInternal:               http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
