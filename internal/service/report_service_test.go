package service

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamReport(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()
	reports := NewReportService(f.examSvc, f.users, "https://theory.test", zerolog.Nop())

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	_, _, err = reports.ExamReport(t.Context(), f.userID, view.ID)
	assert.ErrorIs(t, err, ErrExamNotFinished)

	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, f.correctSheet(t, view.QuestionIDs))
	require.NoError(t, err)

	pdf, name, err := reports.ExamReport(t.Context(), f.userID, view.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Equal(t, "exam-"+view.ID.String()+".pdf", name)

	_, _, err = reports.ExamReport(t.Context(), f.userID+1, view.ID)
	assert.ErrorIs(t, err, ErrExamNotFound)
}
