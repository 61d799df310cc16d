package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/drive"
	"github.com/Criser2013/adt-records/internal/recordstore"
	"github.com/Criser2013/adt-records/internal/repository"
	"github.com/Criser2013/adt-records/internal/service"
	"github.com/Criser2013/adt-records/internal/store"
)

// stubDrive keeps the remote table in memory behind the blob protocol.
type stubDrive struct {
	folders map[string]string
	files   map[string]string
	content map[string][]byte
	nextID  int
}

func newStubDrive() *stubDrive {
	return &stubDrive{
		folders: map[string]string{},
		files:   map[string]string{},
		content: map[string][]byte{},
	}
}

func stubQuoted(query string, n int) string {
	parts := strings.Split(query, "'")
	idx := n*2 + 1
	if idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

func (s *stubDrive) Search(_ context.Context, _, query string) ([]drive.FileMeta, error) {
	if strings.Contains(query, drive.MimeTypeFolder) {
		if id, ok := s.folders[stubQuoted(query, 1)]; ok {
			return []drive.FileMeta{{ID: id}}, nil
		}
		return nil, nil
	}
	key := stubQuoted(query, 0) + "/" + stubQuoted(query, 1)
	if id, ok := s.files[key]; ok {
		return []drive.FileMeta{{ID: id}}, nil
	}
	return nil, nil
}

func (s *stubDrive) CreateFile(_ context.Context, _, name, parentID string, isFolder bool) (drive.FileMeta, error) {
	s.nextID++
	id := fmt.Sprintf("id-%d", s.nextID)
	if isFolder {
		s.folders[name] = id
	} else {
		s.files[parentID+"/"+name] = id
		s.content[id] = nil
	}
	return drive.FileMeta{ID: id, Name: name}, nil
}

func (s *stubDrive) BeginResumableUpload(_ context.Context, _, fileID string) (string, error) {
	return "session/" + fileID, nil
}

func (s *stubDrive) UploadContent(_ context.Context, _, sessionURL string, content []byte) (drive.FileMeta, error) {
	id := strings.TrimPrefix(sessionURL, "session/")
	s.content[id] = content
	return drive.FileMeta{ID: id}, nil
}

func (s *stubDrive) Download(_ context.Context, _, fileID string) ([]byte, error) {
	blob, ok := s.content[fileID]
	if !ok {
		return nil, &drive.Error{Kind: drive.KindNotFound, Status: 404}
	}
	return blob, nil
}

type stubKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newStubKV() *stubKV { return &stubKV{data: map[string]string{}} }

func (m *stubKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (m *stubKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *stubKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *stubKV) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type stubPredictor struct {
	result service.PredictionResponse
	err    error
	calls  int
}

func (p *stubPredictor) Predict(context.Context, map[string]float64) (*service.PredictionResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := p.result
	return &out, nil
}

func newTestRouter(t *testing.T) (*Router, *stubPredictor) {
	t.Helper()
	log := zap.NewNop()
	recStore := recordstore.NewStore(newStubDrive(), "ADT", "patients.xlsx", log)
	diagnoses := repository.NewDiagnosisRepo(newStubKV())
	predictor := &stubPredictor{result: service.PredictionResponse{Probability: 0.75, Prediction: true}}

	router := NewRouter(log)
	router.RegisterPatientRoutes(NewPatientsHandler(recStore, diagnoses, log))
	router.RegisterDiagnosisRoutes(NewDiagnosisHandler(recStore, predictor, diagnoses, log))
	router.RegisterOpsRoutes()
	return router, predictor
}

func doJSON(t *testing.T, router *Router, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createBody(id, name string) map[string]any {
	return map[string]any{
		"document_id": id,
		"full_name":   name,
		"sex":         "F",
		"phone":       "3001112233",
		"birth_date":  "1980-05-12",
		"conditions":  []string{"Diabetes"},
	}
}

func TestPatients_MissingTokenIsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/patients", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var result Result[any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, ResultTokenExpired, result.Code)
}

func TestPatients_CreateListUpdateDelete(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/patients", createBody("1001", "Ana"), "tok")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients", nil, "tok")
	require.Equal(t, http.StatusOK, rec.Code)
	var list Result[[]map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Result, 1)
	assert.Equal(t, "Ana", list.Result[0]["full_name"])

	rec = doJSON(t, router, http.MethodPut, "/api/v1/patients/1001", createBody("1001", "Ana Rodriguez"), "tok")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients", nil, "tok")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Result, 1)
	assert.Equal(t, "Ana Rodriguez", list.Result[0]["full_name"])

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/patients/1001", nil, "tok")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients", nil, "tok")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Result)
}

func TestPatients_DuplicateIdentityConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/patients", createBody("1001", "Ana"), "tok")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/patients", createBody("1001", "Impostor"), "tok")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPatients_ValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createBody("", "Ana")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/patients", body, "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = createBody("1001", "Ana")
	body["sex"] = "X"
	rec = doJSON(t, router, http.MethodPost, "/api/v1/patients", body, "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = createBody("1001", "Ana")
	body["birth_date"] = "12/05/1980"
	rec = doJSON(t, router, http.MethodPost, "/api/v1/patients", body, "tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatients_BulkDelete(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, id := range []string{"A", "B", "C", "D"} {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/patients", createBody(id, "Name "+id), "tok")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/patients/delete",
		map[string]any{"ids": []string{"A", "C"}}, "tok")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients", nil, "tok")
	var list Result[[]map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Result, 2)
	assert.Equal(t, "B", list.Result[0]["document_id"])
	assert.Equal(t, "D", list.Result[1]["document_id"])
}

func TestPatients_DeleteMissingIsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/patients/ghost", nil, "tok")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagnosis_PredictAndList(t *testing.T) {
	router, predictor := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/patients", createBody("1001", "Ana"), "tok")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/diagnosis/predict",
		map[string]any{"patient_id": "1001"}, "tok")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, predictor.calls)

	var saved Result[repository.Diagnosis]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 0.75, saved.Result.Probability)
	assert.True(t, saved.Result.Prediction)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/diagnosis/1001", nil, "tok")
	require.Equal(t, http.StatusOK, rec.Code)
	var items Result[[]repository.Diagnosis]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items.Result, 1)
}

func TestDiagnosis_UnknownPatient(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/diagnosis/predict",
		map[string]any{"patient_id": "ghost"}, "tok")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
