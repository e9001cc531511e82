package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/findings"
)

const sampleReport = `**Anormal Bulgular**
1. Sharp wave (Right frontal) [x:300, y:400]
- focal epileptiform activity`

// runStoreContract exercises the behavior every Store implementation shares.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)

		file := &FileRecord{
			FileName:  "eeg_record.pdf",
			FileURL:   "https://files.example.org/eeg_record.pdf",
			PageCount: 4,
			PatientInfo: &PatientInfo{
				Name: "Test Patient", ID: "P-001", Age: "34", Gender: "F", Notes: "follow-up",
			},
		}
		require.NoError(t, store.CreateFile(ctx, file))
		assert.NotEmpty(t, file.ID)
		assert.False(t, file.UploadDate.IsZero())

		got, err := store.GetFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, file.FileName, got.FileName)
		assert.Equal(t, file.FileURL, got.FileURL)
		assert.Equal(t, 4, got.PageCount)
		require.NotNil(t, got.PatientInfo)
		assert.Equal(t, "P-001", got.PatientInfo.ID)
		assert.NotNil(t, got.Analyses)
		assert.Empty(t, got.Analyses)
		assert.Zero(t, got.AnalyzedPagesCount)
	})

	t.Run("missing file", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetFile(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = store.DeleteFile(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = store.SavePageAnalysis(ctx, &PageAnalysis{FileID: "does-not-exist", PageNumber: 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("page analysis upsert", func(t *testing.T) {
		store := newStore(t)
		file := &FileRecord{FileName: "a.pdf", PageCount: 2}
		require.NoError(t, store.CreateFile(ctx, file))

		first := &PageAnalysis{
			FileID:     file.ID,
			PageNumber: 1,
			ImageURL:   "https://files.example.org/a-1.jpg",
			Analysis:   domain.NewAnalysisResult(findings.ExtractAll(sampleReport)),
			Comment:    "initial",
		}
		require.NoError(t, store.SavePageAnalysis(ctx, first))
		assert.NotEmpty(t, first.ID)

		second := &PageAnalysis{
			FileID:     file.ID,
			PageNumber: 1,
			ImageURL:   "https://files.example.org/a-1.jpg",
			Analysis:   domain.NewAnalysisResult(nil),
			Comment:    "reviewed",
		}
		require.NoError(t, store.SavePageAnalysis(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		got, err := store.GetFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, got.Analyses, 1)
		assert.Equal(t, 1, got.AnalyzedPagesCount)
		assert.Equal(t, "reviewed", got.Analyses[0].Comment)
		assert.Empty(t, got.Analyses[0].Analysis.Findings)
		assert.Equal(t, domain.SummaryNoFindings, got.Analyses[0].Analysis.Summary)
	})

	t.Run("stored findings survive a round trip", func(t *testing.T) {
		store := newStore(t)
		file := &FileRecord{FileName: "b.pdf", PageCount: 1}
		require.NoError(t, store.CreateFile(ctx, file))

		result := domain.NewAnalysisResult(findings.ExtractAll(sampleReport))
		result.Provider = "openai"
		result.Model = "gpt-4o"
		require.NoError(t, store.SavePageAnalysis(ctx, &PageAnalysis{FileID: file.ID, PageNumber: 1, Analysis: result}))

		page, err := store.GetPageAnalysis(ctx, file.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, result.Findings, page.Analysis.Findings)
		assert.Equal(t, "openai", page.Analysis.Provider)

		sections := findings.ClassifyFindings(page.Analysis.Findings)
		abnormal, _ := sections.Get(domain.SectionAbnormal)
		require.Len(t, abnormal.Items, 1)
		assert.Equal(t, "focal epileptiform activity", abnormal.Items[0].Description)

		_, err = store.GetPageAnalysis(ctx, file.ID, 2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("analyses ordered by page", func(t *testing.T) {
		store := newStore(t)
		file := &FileRecord{FileName: "c.pdf", PageCount: 3}
		require.NoError(t, store.CreateFile(ctx, file))

		for _, page := range []int{3, 1, 2} {
			require.NoError(t, store.SavePageAnalysis(ctx, &PageAnalysis{FileID: file.ID, PageNumber: page}))
		}

		got, err := store.GetFile(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, got.Analyses, 3)
		for i, p := range got.Analyses {
			assert.Equal(t, i+1, p.PageNumber)
			assert.Equal(t, file.ID, p.FileID)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		store := newStore(t)
		var ids []string
		for _, name := range []string{"old.pdf", "mid.pdf", "new.pdf"} {
			f := &FileRecord{FileName: name}
			require.NoError(t, store.CreateFile(ctx, f))
			ids = append(ids, f.ID)
			time.Sleep(5 * time.Millisecond)
		}
		require.NoError(t, store.SavePageAnalysis(ctx, &PageAnalysis{FileID: ids[2], PageNumber: 1}))

		all, err := store.ListFiles(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "new.pdf", all[0].FileName)
		assert.Equal(t, 1, all[0].AnalyzedPagesCount)
		assert.Equal(t, "old.pdf", all[2].FileName)

		page, err := store.ListFiles(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "mid.pdf", page[0].FileName)

		count, err := store.CountFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("delete removes analyses", func(t *testing.T) {
		store := newStore(t)
		file := &FileRecord{FileName: "d.pdf"}
		require.NoError(t, store.CreateFile(ctx, file))
		require.NoError(t, store.SavePageAnalysis(ctx, &PageAnalysis{FileID: file.ID, PageNumber: 1}))

		require.NoError(t, store.DeleteFile(ctx, file.ID))

		_, err := store.GetFile(ctx, file.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetPageAnalysis(ctx, file.ID, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("export and import", func(t *testing.T) {
		source := newStore(t)
		for _, name := range []string{"x.pdf", "y.pdf"} {
			f := &FileRecord{FileName: name}
			require.NoError(t, source.CreateFile(ctx, f))
			require.NoError(t, source.SavePageAnalysis(ctx, &PageAnalysis{
				FileID:     f.ID,
				PageNumber: 1,
				Analysis:   domain.NewAnalysisResult(findings.ExtractAll(sampleReport)),
			}))
		}

		var buf bytes.Buffer
		require.NoError(t, source.ExportJSON(ctx, &buf))
		exported := buf.Bytes()

		target := newStore(t)
		imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(exported))
		require.NoError(t, err)
		assert.Equal(t, 2, imported)
		assert.Equal(t, 0, skipped)

		imported, skipped, err = target.ImportJSON(ctx, bytes.NewReader(exported))
		require.NoError(t, err)
		assert.Equal(t, 0, imported)
		assert.Equal(t, 2, skipped)

		all, err := target.ListFiles(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, f := range all {
			require.Len(t, f.Analyses, 1)
			assert.Len(t, f.Analyses[0].Analysis.Findings, 3)
		}
	})

	t.Run("ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}
