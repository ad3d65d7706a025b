package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/qr"
	"live-quiz-service/internal/infra/spreadsheet"
)

const (
	maxUploadBytes = 10 << 20
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// QuestionBank persists uploaded sets and lists stored ones.
type QuestionBank interface {
	SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error
	ListQuestionSets(ctx context.Context) ([]domain.QuestionSetSummary, error)
}

// QRProvider renders the join link for the host display.
type QRProvider interface {
	Info() (qr.Info, error)
	PNG() ([]byte, error)
}

type RESTHandler struct {
	service  *app.QuizService
	bank     QuestionBank
	qr       QRProvider
	template []domain.Question
	logger   *zap.Logger
}

// NewRESTHandler wires the REST surface. bank may be nil when no question bank is configured.
func NewRESTHandler(service *app.QuizService, bank QuestionBank, qr QRProvider, template []domain.Question, logger *zap.Logger) *RESTHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTHandler{service: service, bank: bank, qr: qr, template: template, logger: logger}
}

func (h *RESTHandler) Register(router *httprouter.Router) {
	router.GET("/api/", h.banner)
	router.GET("/api/quiz-state", h.quizState)
	router.GET("/api/scores", h.scores)
	router.GET("/api/qr-code", h.qrCode)
	router.GET("/api/qr-code.png", h.qrCodePNG)
	router.GET("/api/template-excel", h.templateExcel)
	router.POST("/api/upload-excel", h.uploadExcel)
	router.GET("/api/question-sets", h.listQuestionSets)
	router.POST("/api/question-sets/:id/load", h.loadQuestionSet)

	session := h.service.Session()
	router.POST("/api/start-quiz", h.control("Quiz started", session.Start))
	router.POST("/api/pause-quiz", h.control("Quiz paused", session.Pause))
	router.POST("/api/resume-quiz", h.control("Quiz resumed", session.Resume))
	router.POST("/api/next-question", h.control("Next question sent", session.Next))
	router.POST("/api/finish-quiz", h.control("Quiz finished", session.Finish))
	router.POST("/api/reset-quiz", h.control("Quiz reset", session.Reset))
}

func (h *RESTHandler) banner(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Family Quiz API"})
}

// quizState serves the last committed snapshot, the same one broadcast last.
func (h *RESTHandler) quizState(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, h.service.Session().LastSnapshot())
}

func (h *RESTHandler) scores(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snap := h.service.Session().LastSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{"scores": snap.Leaderboard})
}

func (h *RESTHandler) qrCode(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	info, err := h.qr.Info()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *RESTHandler) qrCodePNG(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	png, err := h.qr.PNG()
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *RESTHandler) templateExcel(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	buf, err := spreadsheet.Template(h.template)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", "attachment; filename=quiz_template.xlsx")
	_, _ = w.Write(buf.Bytes())
}

func (h *RESTHandler) uploadExcel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, &domain.ValidationError{Field: "file", Reason: "multipart field missing"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".xls" {
		h.writeError(w, &domain.ValidationError{Field: "file", Reason: "only Excel files are allowed"})
		return
	}

	questions, err := spreadsheet.Parse(file)
	if err != nil {
		h.writeError(w, err)
		return
	}
	set := domain.QuestionSet{
		ID:        "upload-" + uuid.NewString(),
		Title:     strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)),
		Questions: questions,
	}
	if err := h.service.Session().LoadQuestions(r.Context(), set); err != nil {
		h.writeError(w, err)
		return
	}
	if h.bank != nil {
		if err := h.bank.SaveQuestionSet(r.Context(), set); err != nil {
			h.logger.Warn("store uploaded question set", zap.String("set_id", set.ID), zap.Error(err))
		}
	}
	h.logger.Info("question set uploaded", zap.String("set_id", set.ID), zap.Int("count", len(questions)))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Successfully loaded " + strconv.Itoa(len(questions)) + " questions",
		"set_id":    set.ID,
		"count":     len(questions),
		"questions": questions,
	})
}

func (h *RESTHandler) listQuestionSets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if h.bank == nil {
		writeJSON(w, http.StatusOK, map[string]any{"question_sets": []domain.QuestionSetSummary{}})
		return
	}
	sets, err := h.bank.ListQuestionSets(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sets == nil {
		sets = []domain.QuestionSetSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"question_sets": sets})
}

func (h *RESTHandler) loadQuestionSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	set, err := h.service.LoadSet(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully loaded " + strconv.Itoa(len(set.Questions)) + " questions",
		"set_id":  set.ID,
		"count":   len(set.Questions),
	})
}

func (h *RESTHandler) control(message string, action func(context.Context) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := action(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  message,
			"snapshot": h.service.Session().LastSnapshot(),
		})
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorPayload{Code: domain.Code(err), Message: err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrSessionClosed) {
		return http.StatusServiceUnavailable
	}
	switch domain.Code(err) {
	case domain.CodeInvalidState, domain.CodeNotAccepting, domain.CodeDuplicateAnswer:
		return http.StatusConflict
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
