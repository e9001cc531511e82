package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/storage"
)

const report = `**Zemin Aktivitesi**
Posterior dominant alpha rhythm at 9 Hz
**Anormal Bulgular**
1. Spike-wave complex (Left temporal) [x:210, y:340]
- generalized discharge
**Sonuç ve Öneriler**
- Abnormal EEG
- clinical correlation advised`

type fakeAnalyzer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	mime  string
}

func (f *fakeAnalyzer) Name() string  { return "fake" }
func (f *fakeAnalyzer) Model() string { return "fake-1" }

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, mime string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mime = mime
	return f.text, f.err
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]string{}} }

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = text
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "eeg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var pngImage = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestAnalyzeImage(t *testing.T) {
	analyzer := &fakeAnalyzer{text: report}
	svc := NewAnalysisService(testLogger(), analyzer, nil, nil)

	result, err := svc.AnalyzeImage(context.Background(), pngImage, "")
	require.NoError(t, err)

	assert.Equal(t, domain.SummaryAnalyzed, result.Summary)
	assert.Len(t, result.Findings, 8)
	assert.Equal(t, "fake", result.Provider)
	assert.Equal(t, "fake-1", result.Model)
	assert.False(t, result.Cached)
	assert.Equal(t, "image/png", analyzer.mime)
}

func TestAnalyzeImage_EmptyAnswer(t *testing.T) {
	svc := NewAnalysisService(testLogger(), &fakeAnalyzer{text: "  \n"}, nil, nil)

	result, err := svc.AnalyzeImage(context.Background(), pngImage, "image/png")
	require.NoError(t, err)

	assert.Empty(t, result.Findings)
	assert.NotNil(t, result.Findings)
	assert.Equal(t, domain.SummaryNoFindings, result.Summary)
}

func TestAnalyzeImage_Errors(t *testing.T) {
	tests := []struct {
		name           string
		image          []byte
		analyzerErr    error
		wantValidation bool
		wantCause      error
	}{
		{name: "empty image", image: nil, wantValidation: true},
		{name: "analyzer rejects empty image", image: pngImage, analyzerErr: domain.ErrEmptyImage, wantValidation: true},
		{name: "provider failure", image: pngImage, analyzerErr: errors.New("status 500"), wantCause: domain.ErrVisionUnavailable},
		{name: "breaker open", image: pngImage, analyzerErr: domain.ErrVisionUnavailable, wantCause: domain.ErrVisionUnavailable},
		{name: "cancelled", image: pngImage, analyzerErr: context.Canceled, wantCause: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{err: tt.analyzerErr}
			svc := NewAnalysisService(testLogger(), analyzer, nil, nil)

			_, err := svc.AnalyzeImage(context.Background(), tt.image, "image/jpeg")
			require.Error(t, err)

			var verr *domain.ValidationError
			assert.Equal(t, tt.wantValidation, errors.As(err, &verr))
			if tt.wantCause != nil {
				assert.ErrorIs(t, err, tt.wantCause)
				assert.ErrorIs(t, err, domain.ErrVisionUnavailable)
			}
			if tt.image == nil {
				assert.Zero(t, analyzer.calls)
			}
		})
	}
}

func TestAnalyzeImage_UsesCache(t *testing.T) {
	analyzer := &fakeAnalyzer{text: report}
	responses := newMapCache()
	svc := NewAnalysisService(testLogger(), analyzer, responses, nil)
	ctx := context.Background()

	first, err := svc.AnalyzeImage(ctx, pngImage, "image/png")
	require.NoError(t, err)
	second, err := svc.AnalyzeImage(ctx, pngImage, "image/png")
	require.NoError(t, err)

	assert.Equal(t, 1, analyzer.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Findings, second.Findings)

	_, err = svc.AnalyzeImage(ctx, append([]byte{}, append(pngImage, 1)...), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 2, analyzer.calls)
}

func TestAnalyzeImage_EmptyAnswerIsNotCached(t *testing.T) {
	analyzer := &fakeAnalyzer{text: " \n"}
	responses := newMapCache()
	svc := NewAnalysisService(testLogger(), analyzer, responses, nil)
	ctx := context.Background()

	first, err := svc.AnalyzeImage(ctx, pngImage, "image/png")
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryNoFindings, first.Summary)
	assert.Empty(t, responses.entries)

	analyzer.text = report
	second, err := svc.AnalyzeImage(ctx, pngImage, "image/png")
	require.NoError(t, err)

	assert.Equal(t, 2, analyzer.calls)
	assert.False(t, second.Cached)
	assert.Equal(t, domain.SummaryAnalyzed, second.Summary)
	assert.NotEmpty(t, second.Findings)
}

func TestAnalyzeImage_RejectsPDF(t *testing.T) {
	pdf := []byte("%PDF-1.7\n1 0 obj\n")

	tests := []struct {
		name  string
		image []byte
		mime  string
	}{
		{"sniffed", pdf, ""},
		{"declared", pngImage, "application/pdf"},
		{"mislabeled as image", pdf, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{text: report}
			svc := NewAnalysisService(testLogger(), analyzer, nil, nil)

			_, err := svc.AnalyzeImage(context.Background(), tt.image, tt.mime)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "image", verr.Field)
			assert.Contains(t, verr.Message, "rasterized")
			assert.Zero(t, analyzer.calls)
		})
	}
}

func TestAnalyzeImage_FailuresAreNotCached(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("timeout")}
	responses := newMapCache()
	svc := NewAnalysisService(testLogger(), analyzer, responses, nil)

	_, err := svc.AnalyzeImage(context.Background(), pngImage, "image/png")
	require.Error(t, err)
	assert.Empty(t, responses.entries)
}

func TestAnalyzePage_StoresAndReclassifies(t *testing.T) {
	store := newStore(t)
	svc := NewAnalysisService(testLogger(), &fakeAnalyzer{text: report}, nil, store)
	ctx := context.Background()

	file := &storage.FileRecord{FileName: "eeg.pdf", PageCount: 2}
	require.NoError(t, store.CreateFile(ctx, file))

	page, err := svc.AnalyzePage(ctx, PageRequest{
		FileID:   file.ID,
		Page:     2,
		ImageURL: "https://files.example.org/eeg-2.png",
		Image:    pngImage,
		Comment:  "first pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, page.ID)

	sections, err := svc.PageSections(ctx, file.ID, 2)
	require.NoError(t, err)

	background, _ := sections.Get(domain.SectionBackground)
	assert.Equal(t, "Posterior dominant alpha rhythm at 9 Hz", background.Content)

	abnormal, _ := sections.Get(domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 1)
	assert.Equal(t, "Spike-wave complex", abnormal.Items[0].Title)
	assert.Equal(t, "generalized discharge", abnormal.Items[0].Description)
	assert.Equal(t, 210, abnormal.Items[0].Coordinates.X)

	conclusion, _ := sections.Get(domain.SectionConclusion)
	assert.Equal(t, "Abnormal EEG clinical correlation advised", conclusion.Description)
}

func TestAnalyzePage_Validation(t *testing.T) {
	store := newStore(t)
	svc := NewAnalysisService(testLogger(), &fakeAnalyzer{text: report}, nil, store)
	ctx := context.Background()

	var verr *domain.ValidationError

	_, err := svc.AnalyzePage(ctx, PageRequest{Page: 1, Image: pngImage})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AnalyzePage(ctx, PageRequest{FileID: "f", Page: 0, Image: pngImage})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.AnalyzePage(ctx, PageRequest{FileID: "unknown", Page: 1, Image: pngImage})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSavePageAnalysis_NormalizesInput(t *testing.T) {
	store := newStore(t)
	svc := NewAnalysisService(testLogger(), nil, nil, store)
	ctx := context.Background()

	file := &storage.FileRecord{FileName: "eeg.pdf"}
	require.NoError(t, store.CreateFile(ctx, file))

	desc := "Blink artifact"
	loc := "Fp1"
	header := "**Artefaktlar**"
	raw := domain.RawAnalysis{Findings: []domain.RawFinding{
		{Description: &header},
		{Description: &desc, Location: &loc},
	}}

	saved, err := svc.SavePageAnalysis(ctx, file.ID, 1, "", raw, "manual")
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryAnalyzed, saved.Analysis.Summary)

	sections, err := svc.PageSections(ctx, file.ID, 1)
	require.NoError(t, err)
	artifacts, _ := sections.Get(domain.SectionArtifacts)
	require.Len(t, artifacts.Items, 1)
	assert.Equal(t, 2, artifacts.Items[0].ID)
	assert.Equal(t, 500, artifacts.Items[0].Coordinates.X)

	_, err = svc.PageSections(ctx, file.ID, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithoutStore(t *testing.T) {
	svc := NewAnalysisService(testLogger(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.AnalyzePage(ctx, PageRequest{FileID: "f", Page: 1, Image: pngImage})
	assert.ErrorIs(t, err, errNoStore)
	_, err = svc.PageSections(ctx, "f", 1)
	assert.ErrorIs(t, err, errNoStore)

	_, err = svc.AnalyzeImage(ctx, pngImage, "image/png")
	assert.ErrorIs(t, err, domain.ErrVisionUnavailable)
}

func TestSections(t *testing.T) {
	svc := NewAnalysisService(testLogger(), nil, nil, nil)

	header := "**Anormal Bulgular**"
	item := "2. Polyspike"
	loc := "Cz"
	x, y := 120, 80

	sections := svc.Sections([]domain.RawFinding{
		{Description: &header},
		{Description: &item, Location: &loc, Coordinates: &domain.RawCoordinates{X: &x, Y: &y}},
	})

	abnormal, _ := sections.Get(domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 1)
	assert.Equal(t, "Polyspike", abnormal.Items[0].Title)
	assert.Equal(t, domain.Box{X: 120, Y: 80, Width: 30, Height: 20}, abnormal.Items[0].Coordinates)
}

func TestParseText(t *testing.T) {
	assert.Equal(t, domain.SummaryNoFindings, ParseText("").Summary)
	assert.Len(t, ParseText(report).Findings, 8)
}
