package common

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidatorCollectsErrors(t *testing.T) {
	v := NewValidator().
		Field("checkListId", uuid.Nil, UUID).
		Field("resultId", "nope", UUID).
		Field("fileType", "DOCX", OneOf("PDF", "IMAGE", "TXT")).
		Field("documents", []string{}, NotEmpty).
		Field("name", "  ", Required, MaxLength(3)).
		Field("jobId", uuid.New(), UUID).
		Field("comment", (*string)(nil), MaxLength(3))

	require.Len(t, v.Errors(), 5)
	assert.Equal(t, FieldError{Field: "checkListId", Message: "is required"}, v.Errors()[0])
	assert.Equal(t, "must be a valid UUID", v.Errors()[1].Message)
	// Rules for one field stop at the first failure.
	assert.Equal(t, FieldError{Field: "name", Message: "is required"}, v.Errors()[4])

	err := v.Err()
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "fileType must be one of PDF, IMAGE, TXT")
	assert.Equal(t, codes.InvalidArgument, status.Code(ToStatus(err)))
}

func TestValidatorPasses(t *testing.T) {
	long := "abcd"
	v := NewValidator().
		Field("jobId", uuid.New().String(), UUID).
		Field("name", "Contract", Required, MaxLength(8)).
		Field("documents", []int{1}, Required, NotEmpty).
		Field("fileType", "PDF", OneOf("PDF"))
	assert.NoError(t, v.Err())

	err := NewValidator().Field("comment", &long, MaxLength(3)).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comment must be at most 3 characters")
}

func TestRequired(t *testing.T) {
	empty := ""
	var nilID *uuid.UUID
	for _, v := range []any{nil, "", " \t", &empty, (*string)(nil), uuid.Nil, nilID, []string{}, map[string]int{}} {
		assert.Equal(t, "is required", Required(v), "%#v", v)
	}
	id := uuid.New()
	for _, v := range []any{"x", id, &id, []string{"a"}, 3} {
		assert.Empty(t, Required(v), "%#v", v)
	}
}

func TestToStatus(t *testing.T) {
	assert.Nil(t, ToStatus(nil))
	assert.Equal(t, codes.NotFound, status.Code(ToStatus(WrapError(ErrNotFound, "get job"))))
	assert.Equal(t, codes.InvalidArgument, status.Code(ToStatus(NewAppError("X", "bad", ErrInvalidInput))))
	assert.Equal(t, codes.FailedPrecondition, status.Code(ToStatus(WrapError(ErrPrecondition, "override"))))
	assert.Equal(t, codes.Internal, status.Code(ToStatus(assert.AnError)))
	assert.Nil(t, WrapError(nil, "noop"))
	assert.True(t, errors.Is(WrapError(ErrValidation, "extract"), ErrValidation))

	already := status.Error(codes.Unavailable, "later")
	assert.Equal(t, already, ToStatus(already))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(ctx, "req-1")))
}
