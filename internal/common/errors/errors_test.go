// internal/common/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "direct standard error",
			err:  NewParseFailedError(errors.New("boom")),
			want: ErrCodeParseFailed,
		},
		{
			name: "wrapped standard error",
			err:  fmt.Errorf("resolution stage: %w", NewRecordNotFoundError("purchase_order", "4500001234")),
			want: ErrCodeRecordNotFound,
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
			want: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestNormalize_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("store: %w", NewPlanNotFoundError("plan-1"))

	std := Normalize(wrapped)

	assert.Equal(t, ErrCodePlanNotFound, std.Code)
	assert.Contains(t, std.Details, "plan-1")
}

func TestNormalize_WrapsPlainErrors(t *testing.T) {
	std := Normalize(errors.New("disk on fire"))

	assert.Equal(t, ErrCodeInternal, std.Code)
	assert.Equal(t, "disk on fire", std.Details)
}
