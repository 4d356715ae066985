package pkgerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_RendersKindAndDetail(t *testing.T) {
	err := New(UnknownPackage, "left-pad", nil)
	require.Equal(t, "UnknownPackage: left-pad", err.Error())
}

func TestError_RendersCauseWhenPresent(t *testing.T) {
	cause := errors.New("boom")
	err := New(PublishFailed, "left-pad", cause)
	require.Equal(t, "PublishFailed: left-pad: boom", err.Error())
}

func TestErrorsIs_MatchesOnKindAlone(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", New(Busy, "catalog", nil))
	require.True(t, errors.Is(wrapped, New(Busy, "", nil)))
	require.False(t, errors.Is(wrapped, New(RegistryDown, "", nil)))
}

func TestErrorsAs_RecoversTypedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", New(InvalidWorkspace, "packages/a", nil))
	var pe *Error
	require.True(t, errors.As(wrapped, &pe))
	require.Equal(t, InvalidWorkspace, pe.Kind)
}

func TestOf_FindsKindThroughWrapChain(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", New(StateCorrupt, "catalog.json", nil)))
	require.True(t, Of(wrapped, StateCorrupt))
	require.False(t, Of(wrapped, Busy))
}

func TestNewf_FormatsDetail(t *testing.T) {
	err := Newf(InvalidWorkspace, "a", "dependency cycle: %v", []string{"a", "b"})
	require.Equal(t, "InvalidWorkspace: dependency cycle: [a b]", err.Error())
}
