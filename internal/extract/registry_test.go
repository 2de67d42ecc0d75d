package extract_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/extract"
	"github.com/vmunix/mediarelay/internal/extract/mocks"
	"github.com/vmunix/mediarelay/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chain struct {
	tool    *mocks.MockToolStrategy
	direct  *mocks.MockStrategy
	browser *mocks.MockStrategy
	reg     *extract.Registry
}

func newChain(t *testing.T) chain {
	ctrl := gomock.NewController(t)
	c := chain{
		tool:    mocks.NewMockToolStrategy(ctrl),
		direct:  mocks.NewMockStrategy(ctrl),
		browser: mocks.NewMockStrategy(ctrl),
	}
	c.tool.EXPECT().Name().Return(media.StrategyTool).AnyTimes()
	c.direct.EXPECT().Name().Return(media.StrategyDirect).AnyTimes()
	c.browser.EXPECT().Name().Return(media.StrategyBrowser).AnyTimes()
	c.reg = extract.NewRegistry(testLogger(), c.tool, c.direct, c.browser)
	return c
}

func item(title string) media.Descriptor {
	return media.NewDescriptor(media.Descriptor{Title: title, SourceURL: "https://example.com/v"})
}

func TestRegistry_AutoStopsAfterToolSuccess(t *testing.T) {
	c := newChain(t)
	c.tool.EXPECT().Extract(gomock.Any(), "https://example.com/v", gomock.Any()).
		Return([]media.Descriptor{item("clip")}, nil).Times(1)
	// direct and browser have no Extract expectations: any call fails the test.

	items, err := c.reg.Extract(context.Background(), "https://example.com/v", media.Options{Strategy: media.StrategyAuto})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "clip", items[0].Title)
}

func TestRegistry_AutoFallsBackOnEmptyAndError(t *testing.T) {
	c := newChain(t)
	gomock.InOrder(
		c.tool.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("unsupported url")),
		c.direct.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil),
		c.browser.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return([]media.Descriptor{item("sniffed")}, nil),
	)

	items, err := c.reg.Extract(context.Background(), "https://example.com/v", media.Options{})
	require.NoError(t, err)
	assert.Equal(t, "sniffed", items[0].Title)
}

func TestRegistry_AutoAllEmpty(t *testing.T) {
	c := newChain(t)
	c.tool.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return([]media.Descriptor{}, nil)
	c.direct.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	c.browser.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := c.reg.Extract(context.Background(), "https://example.com/v", media.Options{Strategy: media.StrategyAuto})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExtractionFailed)

	details := apperr.DetailsOf(err)
	require.Len(t, details, 3)
	assert.Equal(t, "tool", details[0].Source)
	assert.Equal(t, "direct", details[1].Source)
	assert.Equal(t, "browser", details[2].Source)
	for _, name := range []string{"tool", "direct", "browser"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestRegistry_ExplicitNoFallback(t *testing.T) {
	c := newChain(t)
	c.direct.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("page fetch failed"))

	_, err := c.reg.Extract(context.Background(), "https://example.com/v", media.Options{Strategy: media.StrategyDirect})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "direct")
	assert.Contains(t, err.Error(), "page fetch failed")
}

func TestRegistry_ExplicitEmpty(t *testing.T) {
	c := newChain(t)
	c.browser.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := c.reg.Extract(context.Background(), "https://example.com/v", media.Options{Strategy: media.StrategyBrowser})
	assert.ErrorIs(t, err, apperr.ErrExtractionFailed)
	assert.ErrorIs(t, err, extract.ErrNoMedia)
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	ctrl := gomock.NewController(t)
	direct := mocks.NewMockStrategy(ctrl)
	direct.EXPECT().Name().Return(media.StrategyDirect).AnyTimes()
	reg := extract.NewRegistry(testLogger(), direct)

	_, err := reg.Extract(context.Background(), "https://example.com", media.Options{Strategy: media.StrategyBrowser})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegistry_AutoSkipsUnregistered(t *testing.T) {
	ctrl := gomock.NewController(t)
	direct := mocks.NewMockStrategy(ctrl)
	direct.EXPECT().Name().Return(media.StrategyDirect).AnyTimes()
	direct.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	reg := extract.NewRegistry(testLogger(), direct)

	_, err := reg.Extract(context.Background(), "https://example.com", media.Options{})
	require.Error(t, err)
	assert.Len(t, apperr.DetailsOf(err), 1)
	assert.Equal(t, []media.Strategy{media.StrategyDirect}, reg.Names())
}

func TestRegistry_AutoStopsOnCancelledContext(t *testing.T) {
	c := newChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	c.tool.EXPECT().Extract(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string, media.Options) ([]media.Descriptor, error) {
			cancel()
			return nil, context.Canceled
		})

	_, err := c.reg.Extract(ctx, "https://example.com/v", media.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Formats(t *testing.T) {
	c := newChain(t)
	c.tool.EXPECT().ListFormats(gomock.Any(), "https://example.com/v").Return([]media.Descriptor{item("a"), item("b")}, nil)

	items, err := c.reg.Formats(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRegistry_FormatsWithoutTool(t *testing.T) {
	reg := extract.NewRegistry(testLogger())
	_, err := reg.Formats(context.Background(), "https://example.com/v")
	assert.ErrorIs(t, err, extract.ErrNoTool)
}
