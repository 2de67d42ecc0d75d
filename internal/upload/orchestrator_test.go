package upload_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/upload"
	"github.com/vmunix/mediarelay/internal/upload/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackends(t *testing.T, names ...string) ([]*mocks.MockBackend, *upload.Registry) {
	t.Helper()
	ctrl := gomock.NewController(t)
	var ms []*mocks.MockBackend
	var bs []upload.Backend
	for _, n := range names {
		m := mocks.NewMockBackend(ctrl)
		m.EXPECT().Name().Return(n).AnyTimes()
		ms = append(ms, m)
		bs = append(bs, m)
	}
	reg, err := upload.NewRegistry(bs...)
	require.NoError(t, err)
	return ms, reg
}

func ok(name string) *upload.Result {
	return &upload.Result{DownloadURL: "https://" + name + ".example.com/f"}
}

func TestUpload_AllPartialSuccess(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c")
	ms[0].EXPECT().Upload(gomock.Any(), "/tmp/f.mp4", gomock.Any()).Return(nil, errors.New("quota exceeded"))
	ms[1].EXPECT().Upload(gomock.Any(), "/tmp/f.mp4", gomock.Any()).Return(ok("b"), nil)
	ms[2].EXPECT().Upload(gomock.Any(), "/tmp/f.mp4", gomock.Any()).Return(nil, errors.New("timeout"))

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeAll})
	require.NoError(t, err)

	assert.Equal(t, 1, out.TotalSuccess)
	assert.Equal(t, 2, out.TotalFailed)
	require.Len(t, out.Uploads, 1)
	assert.Equal(t, "b", out.Uploads[0].Backend)
	assert.True(t, out.Uploads[0].Success)
	assert.Equal(t, "a", out.Failed[0].Backend)
	assert.Equal(t, "quota exceeded", out.Failed[0].Error)
	assert.Equal(t, "c", out.Failed[1].Backend)
}

func TestUpload_AllFail(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c")
	for _, m := range ms {
		m.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("down"))
	}

	o := upload.NewOrchestrator(reg, 3, testLogger())
	_, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeAll})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUploadFailed)

	details := apperr.DetailsOf(err)
	require.Len(t, details, 3)
	for i, name := range []string{"a", "b", "c"} {
		assert.Equal(t, name, details[i].Source)
		assert.Contains(t, err.Error(), name+": down")
	}
}

func TestUpload_AllRespectsConcurrencyLimit(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c", "d")
	var inFlight, peak atomic.Int32
	for _, m := range ms {
		m.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, string, upload.Options) (*upload.Result, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
				return ok("x"), nil
			})
	}

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{})
	require.NoError(t, err)
	assert.Equal(t, 4, out.TotalSuccess)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestUpload_AllSubset(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c")
	ms[2].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(ok("c"), nil)

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Backends: []string{"c", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalSuccess)
}

func TestUpload_EmptySelectionIsValidationError(t *testing.T) {
	_, reg := newBackends(t, "a")
	o := upload.NewOrchestrator(reg, 2, testLogger())

	_, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Backends: []string{}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Backends: []string{"missing"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpload_FirstSkipsUnavailable(t *testing.T) {
	ms, reg := newBackends(t, "a", "b", "c")
	ms[0].EXPECT().Available(gomock.Any()).Return(false)
	ms[1].EXPECT().Available(gomock.Any()).Return(true)
	ms[1].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(ok("b"), nil)
	// c is never probed or uploaded to.

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeFirst})
	require.NoError(t, err)
	require.Len(t, out.Uploads, 1)
	assert.Equal(t, "b", out.Uploads[0].Backend)
	assert.Equal(t, 1, out.TotalSuccess)
	// Backends passed over on the way are not part of a successful result.
	assert.Equal(t, 0, out.TotalFailed)
	assert.NotNil(t, out.Failed)
	assert.Empty(t, out.Failed)
}

func TestUpload_FirstSuccessAfterFailure(t *testing.T) {
	ms, reg := newBackends(t, "a", "b")
	ms[0].EXPECT().Available(gomock.Any()).Return(true)
	ms[0].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("500"))
	ms[1].EXPECT().Available(gomock.Any()).Return(true)
	ms[1].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(ok("b"), nil)

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeFirst})
	require.NoError(t, err)
	require.Len(t, out.Uploads, 1)
	assert.Equal(t, "b", out.Uploads[0].Backend)
	assert.Equal(t, 1, out.TotalSuccess)
	assert.Equal(t, 0, out.TotalFailed)
	assert.Empty(t, out.Failed)
}

func TestUpload_FirstFallsThroughFailures(t *testing.T) {
	ms, reg := newBackends(t, "a", "b")
	ms[0].EXPECT().Available(gomock.Any()).Return(true)
	ms[0].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("500"))
	ms[1].EXPECT().Available(gomock.Any()).Return(false)

	o := upload.NewOrchestrator(reg, 2, testLogger())
	_, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeFirst})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUploadFailed)
	assert.Len(t, apperr.DetailsOf(err), 2)
}

func TestUpload_Specific(t *testing.T) {
	ms, reg := newBackends(t, "a", "b")
	ms[1].EXPECT().Upload(gomock.Any(), "/tmp/f.mp4", upload.Options{FileName: "Clip.mp4"}).Return(ok("b"), nil)

	o := upload.NewOrchestrator(reg, 1, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeSpecific, Backend: "b", FileName: "Clip.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "b", out.Uploads[0].Backend)
}

func TestUpload_SpecificErrorPropagates(t *testing.T) {
	ms, reg := newBackends(t, "a", "b")
	cause := errors.New("file too large for b")
	ms[1].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, cause)

	o := upload.NewOrchestrator(reg, 1, testLogger())
	_, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeSpecific, Backend: "b"})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, apperr.ErrUploadFailed)
}

func TestUpload_SpecificNilResultFails(t *testing.T) {
	ms, reg := newBackends(t, "a")
	ms[0].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	o := upload.NewOrchestrator(reg, 1, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeSpecific, Backend: "a"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperr.ErrUploadFailed)
	assert.ErrorIs(t, err, upload.ErrNoResult)
}

func TestUpload_AllNilResultCountsAsFailure(t *testing.T) {
	ms, reg := newBackends(t, "a", "b")
	ms[0].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	ms[1].EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(ok("b"), nil)

	o := upload.NewOrchestrator(reg, 2, testLogger())
	out, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalSuccess)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "a", out.Failed[0].Backend)
	assert.Equal(t, upload.ErrNoResult.Error(), out.Failed[0].Error)
}

func TestUpload_SpecificUnknownBackend(t *testing.T) {
	_, reg := newBackends(t, "gofile", "pixeldrain")
	o := upload.NewOrchestrator(reg, 1, testLogger())

	_, err := o.Upload(context.Background(), "/tmp/f.mp4", upload.Request{Mode: upload.ModeSpecific, Backend: "gofil"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, err, upload.ErrUnknownBackend)
	assert.Contains(t, err.Error(), `did you mean "gofile"`)
}
