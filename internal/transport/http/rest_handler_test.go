package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/spreadsheet"
)

type fakeBank struct {
	mu   sync.Mutex
	sets []domain.QuestionSet
}

func (b *fakeBank) SaveQuestionSet(_ context.Context, set domain.QuestionSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets = append(b.sets, set)
	return nil
}

func (b *fakeBank) ListQuestionSets(context.Context) ([]domain.QuestionSetSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.QuestionSetSummary, 0, len(b.sets))
	for _, s := range b.sets {
		out = append(out, domain.QuestionSetSummary{ID: s.ID, Title: s.Title, Count: len(s.Questions), UpdatedAt: time.Now()})
	}
	return out, nil
}

func doJSON(t *testing.T, method, url string, body *bytes.Buffer, contentType string) (int, map[string]any) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, out
}

func uploadBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestRESTBannerAndState(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.server.URL

	status, banner := doJSON(t, http.MethodGet, base+"/api/", nil, "")
	if status != http.StatusOK || banner["message"] != "Family Quiz API" {
		t.Fatalf("unexpected banner %d %v", status, banner)
	}

	status, state := doJSON(t, http.MethodGet, base+"/api/quiz-state", nil, "")
	if status != http.StatusOK || state["status"] != "waiting" {
		t.Fatalf("unexpected state %d %v", status, state)
	}

	status, body := doJSON(t, http.MethodPost, base+"/api/start-quiz", nil, "")
	if status != http.StatusConflict || body["code"] != domain.CodeInvalidState {
		t.Fatalf("start without questions: %d %v", status, body)
	}
}

func TestRESTUploadAndControl(t *testing.T) {
	bank := &fakeBank{}
	ts := newTestServer(t, bank)
	base := ts.server.URL

	xlsx, err := spreadsheet.Template(memory.SampleQuestionSet().Questions)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	body, ct := uploadBody(t, "family.xlsx", xlsx.Bytes())
	status, resp := doJSON(t, http.MethodPost, base+"/api/upload-excel", body, ct)
	if status != http.StatusOK || resp["count"] != float64(3) {
		t.Fatalf("upload: %d %v", status, resp)
	}

	status, listing := doJSON(t, http.MethodGet, base+"/api/question-sets", nil, "")
	sets, _ := listing["question_sets"].([]any)
	if status != http.StatusOK || len(sets) != 1 {
		t.Fatalf("expected uploaded set in bank, got %d %v", status, listing)
	}

	status, resp = doJSON(t, http.MethodPost, base+"/api/start-quiz", nil, "")
	snap, _ := resp["snapshot"].(map[string]any)
	if status != http.StatusOK || snap["status"] != "active" {
		t.Fatalf("start: %d %v", status, resp)
	}

	status, resp = doJSON(t, http.MethodPost, base+"/api/pause-quiz", nil, "")
	if status != http.StatusOK || resp["snapshot"].(map[string]any)["status"] != "paused" {
		t.Fatalf("pause: %d %v", status, resp)
	}
	status, resp = doJSON(t, http.MethodPost, base+"/api/resume-quiz", nil, "")
	if status != http.StatusOK || resp["snapshot"].(map[string]any)["status"] != "active" {
		t.Fatalf("resume: %d %v", status, resp)
	}

	doJSON(t, http.MethodPost, base+"/api/next-question", nil, "")
	doJSON(t, http.MethodPost, base+"/api/next-question", nil, "")
	status, resp = doJSON(t, http.MethodPost, base+"/api/next-question", nil, "")
	if status != http.StatusConflict {
		t.Fatalf("next past the last question: %d %v", status, resp)
	}
	status, resp = doJSON(t, http.MethodPost, base+"/api/finish-quiz", nil, "")
	if status != http.StatusOK || resp["snapshot"].(map[string]any)["status"] != "finished" {
		t.Fatalf("finish: %d %v", status, resp)
	}

	status, scores := doJSON(t, http.MethodGet, base+"/api/scores", nil, "")
	if status != http.StatusOK {
		t.Fatalf("scores: %d %v", status, scores)
	}
	if _, ok := scores["scores"]; !ok {
		t.Fatalf("scores key missing: %v", scores)
	}

	status, resp = doJSON(t, http.MethodPost, base+"/api/reset-quiz", nil, "")
	if status != http.StatusOK || resp["snapshot"].(map[string]any)["status"] != "waiting" {
		t.Fatalf("reset: %d %v", status, resp)
	}
}

func TestRESTUploadCanBeReloadedFromMemoryBank(t *testing.T) {
	bank := memory.NewStaticQuestionSetLoader(memory.SampleQuestionSet())
	ts := newTestServer(t, bank)
	base := ts.server.URL

	xlsx, err := spreadsheet.Template(memory.SampleQuestionSet().Questions[:2])
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	body, ct := uploadBody(t, "short.xlsx", xlsx.Bytes())
	status, resp := doJSON(t, http.MethodPost, base+"/api/upload-excel", body, ct)
	setID, _ := resp["set_id"].(string)
	if status != http.StatusOK || setID == "" {
		t.Fatalf("upload: %d %v", status, resp)
	}

	if status, resp := doJSON(t, http.MethodPost, base+"/api/question-sets/sample/load", nil, ""); status != http.StatusOK {
		t.Fatalf("load sample: %d %v", status, resp)
	}
	status, resp = doJSON(t, http.MethodPost, base+"/api/question-sets/"+setID+"/load", nil, "")
	if status != http.StatusOK || resp["count"] != float64(2) {
		t.Fatalf("reload upload: %d %v", status, resp)
	}
	if got := ts.session.LastSnapshot().TotalQuestions; got != 2 {
		t.Fatalf("expected uploaded set live again, got %d questions", got)
	}
}

func TestRESTUploadRejections(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.server.URL

	body, ct := uploadBody(t, "questions.csv", []byte("a,b,c"))
	status, resp := doJSON(t, http.MethodPost, base+"/api/upload-excel", body, ct)
	if status != http.StatusBadRequest || resp["code"] != domain.CodeValidation {
		t.Fatalf("bad extension: %d %v", status, resp)
	}

	body, ct = uploadBody(t, "broken.xlsx", []byte("not a workbook"))
	status, resp = doJSON(t, http.MethodPost, base+"/api/upload-excel", body, ct)
	if status != http.StatusBadRequest {
		t.Fatalf("garbage workbook: %d %v", status, resp)
	}
	if ts.session.LastSnapshot().TotalQuestions != 0 {
		t.Fatalf("failed upload must not load questions")
	}
}

func TestRESTQuestionSets(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.server.URL

	status, resp := doJSON(t, http.MethodPost, base+"/api/question-sets/sample/load", nil, "")
	if status != http.StatusOK || resp["count"] != float64(3) {
		t.Fatalf("load sample: %d %v", status, resp)
	}
	status, resp = doJSON(t, http.MethodPost, base+"/api/question-sets/nope/load", nil, "")
	if status != http.StatusNotFound || resp["code"] != domain.CodeNotFound {
		t.Fatalf("unknown set: %d %v", status, resp)
	}
	status, resp = doJSON(t, http.MethodGet, base+"/api/question-sets", nil, "")
	if sets, _ := resp["question_sets"].([]any); status != http.StatusOK || len(sets) != 0 {
		t.Fatalf("listing without a bank: %d %v", status, resp)
	}
}

func TestRESTQRAndTemplate(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.server.URL

	status, info := doJSON(t, http.MethodGet, base+"/api/qr-code", nil, "")
	if status != http.StatusOK || info["url"] != "http://quiz.test/join" || info["qr_code"] == "" {
		t.Fatalf("qr info: %d %v", status, info)
	}

	resp, err := http.Get(base + "/api/qr-code.png")
	if err != nil {
		t.Fatalf("qr png: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr content type %q", resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(base + "/api/template-excel")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != xlsxMediaType {
		t.Fatalf("template: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	questions, err := spreadsheet.Parse(resp.Body)
	if err != nil || len(questions) != 3 {
		t.Fatalf("template should parse back into 3 questions: %v %d", err, len(questions))
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.server.URL+"/api/start-quiz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
