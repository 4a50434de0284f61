package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, CodeDuplicate, Code(fmt.Errorf("insert entry: %w", ErrDuplicate)))
	assert.Equal(t, CodePermissionDenied, Code(ErrPermissionDenied))
	assert.Equal(t, CodeStorage, Code(errors.New("disk on fire")))

	for _, c := range []string{CodeInvalidInput, CodeNetworkUnavailable, CodeDuplicate, CodeNotFound, CodeMissingMember, CodePermissionDenied} {
		assert.Equal(t, c, Code(FromCode(c)))
	}
	assert.ErrorIs(t, FromCode("whatever"), ErrStorage)
}

func TestPtr(t *testing.T) {
	assert.Nil(t, Ptr(""))
	assert.Equal(t, "x", *Ptr("x"))
	assert.Equal(t, "", Deref(nil))
	assert.Equal(t, "y", Deref(Ptr("y")))
}
