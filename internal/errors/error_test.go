package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError_Error(t *testing.T) {
	err := New(ErrorTypeNotReady, "tsne_data", "embedding metadata is not ready")
	assert.Equal(t, "[not_ready] tsne_data: embedding metadata is not ready", err.Error())

	cause := errors.New("unexpected EOF")
	err = Wrap(cause, ErrorTypeDatasetMalformed, "load_dataset", "cannot decode bundle")
	assert.Contains(t, err.Error(), "[dataset_malformed] load_dataset: cannot decode bundle")
	assert.Contains(t, err.Error(), "unexpected EOF")
	assert.Equal(t, cause, err.Unwrap())
}

func TestStructuredError_WithContext(t *testing.T) {
	err := NewDatasetNotFound("/data/features.parquet").WithContext("attempt", 1)

	assert.Equal(t, "/data/features.parquet", err.Context["path"])
	assert.Equal(t, 1, err.Context["attempt"])
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeDatasetMalformed, "op", "msg"))
	assert.Nil(t, WrapConfigurationError(nil, "op", "msg"))
}

func TestIsType(t *testing.T) {
	base := NewImageNotFound(errors.New("stat /nope: no such file or directory"))
	wrapped := fmt.Errorf("handler: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeImageNotFound))
	assert.False(t, IsType(wrapped, ErrorTypeNotReady))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeImageNotFound))

	typ, ok := TypeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeImageNotFound, typ)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *StructuredError
		typ   ErrorType
		fatal bool
	}{
		{"dataset not found", NewDatasetNotFound("/x"), ErrorTypeDatasetNotFound, true},
		{"dataset malformed", WrapDatasetMalformed(nil, "/x", "missing column"), ErrorTypeDatasetMalformed, true},
		{"precondition", NewEmbeddingPrecondition("too few rows"), ErrorTypeEmbeddingPrecondition, true},
		{"not ready", NewNotReady("tsne_data"), ErrorTypeNotReady, false},
		{"image not found", NewImageNotFound(nil), ErrorTypeImageNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.fatal, tt.err.Type.Fatal())
			assert.NotEmpty(t, tt.err.Stack)
		})
	}
}
