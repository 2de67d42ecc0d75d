package upload_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/mediarelay/internal/upload"
	"github.com/vmunix/mediarelay/internal/upload/mocks"
)

func TestRegistry_OrderAndDuplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockBackend(ctrl)
	a.EXPECT().Name().Return("a").AnyTimes()
	b := mocks.NewMockBackend(ctrl)
	b.EXPECT().Name().Return("b").AnyTimes()

	reg, err := upload.NewRegistry(b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, reg.Names())
	assert.Equal(t, []string{"b", "a"}, reg.Select([]string{"a", "b"}))
	assert.Equal(t, []string{"b", "a"}, reg.Select(nil))
	assert.Empty(t, reg.Select([]string{}))

	assert.ErrorIs(t, reg.Register(a), upload.ErrDuplicateBackend)
}

func TestRegistry_GetUnknownWithoutSuggestion(t *testing.T) {
	_, reg := newBackends(t, "catbox")
	_, err := reg.Get("zzzzzzzz")
	assert.ErrorIs(t, err, upload.ErrUnknownBackend)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestRegistry_Available(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c")
	ms[0].EXPECT().Available(gomock.Any()).Return(true)
	ms[1].EXPECT().Available(gomock.Any()).Return(false)
	ms[2].EXPECT().Available(gomock.Any()).Return(true)

	assert.Equal(t, []string{"a", "c"}, reg.Available(context.Background()))
}
