package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// ExamViewer is implemented by ExamService.
type ExamViewer interface {
	Get(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamView, error)
}

// ReportService renders result slips for finalized exams.
type ReportService struct {
	exams         ExamViewer
	users         UserStore
	publicBaseURL string
	log           zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(exams ExamViewer, users UserStore, publicBaseURL string, log zerolog.Logger) *ReportService {
	return &ReportService{
		exams:         exams,
		users:         users,
		publicBaseURL: publicBaseURL,
		log:           log.With().Str("component", "report_service").Logger(),
	}
}

// ExamReport renders the PDF result slip of a finalized exam and returns it
// with a download file name.
func (s *ReportService) ExamReport(ctx context.Context, userID int, examID uuid.UUID) ([]byte, string, error) {
	view, err := s.exams.Get(ctx, userID, examID)
	if err != nil {
		return nil, "", err
	}
	if view.InProgress() || view.Score == nil {
		return nil, "", ErrExamNotFinished
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	verifyURL := fmt.Sprintf("%s/exams/%s", s.publicBaseURL, view.ID)
	qr, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, "", fmt.Errorf("encode qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Theory exam result", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, "Driving theory exam result", "", "L", false)
	pdf.Ln(2)

	pdf.RegisterImageOptionsReader("verify-qr", gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("verify-qr", 160, 10, 35, 35, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	passed := view.Passed != nil && *view.Passed
	verdict := "FAILED"
	if passed {
		verdict = "PASSED"
	}
	answered := 0
	correct := 0
	for i, a := range view.Answers {
		if a == model.Unanswered {
			continue
		}
		answered++
		if i < len(view.CorrectAnswers) && view.CorrectAnswers[i] == a {
			correct++
		}
	}

	pdf.SetFont("Helvetica", "", 12)
	info := fmt.Sprintf("Candidate: %s <%s>\nExam: %s\nStarted: %s\nFinished: %s\nScore: %d%% (%s)\nCorrect: %d of %d, answered %d\n",
		user.Name, user.Email,
		view.ID,
		view.StartTime.Format("2006-01-02 15:04 MST"),
		view.EndTime.Format("2006-01-02 15:04 MST"),
		*view.Score, verdict,
		correct, len(view.QuestionIDs), answered,
	)
	pdf.MultiCell(120, 7, tr(info), "", "L", false)
	pdf.Ln(6)

	for i, q := range view.Questions {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, q.Prompt)), "", "L", false)

		pdf.SetFont("Helvetica", "", 10)
		given := "(not answered)"
		if i < len(view.Answers) && view.Answers[i] >= 0 && view.Answers[i] < len(q.Options) {
			given = q.Options[view.Answers[i]]
		}
		expected := ""
		if i < len(view.CorrectAnswers) && view.CorrectAnswers[i] < len(q.Options) {
			expected = q.Options[view.CorrectAnswers[i]]
		}
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("Your answer: %s\nCorrect answer: %s", given, expected)), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render pdf: %w", err)
	}

	s.log.Debug().Int("user_id", userID).Str("exam_id", examID.String()).Int("bytes", buf.Len()).Msg("Exam report rendered")
	return buf.Bytes(), fmt.Sprintf("exam-%s.pdf", view.ID), nil
}
