package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	appErrors "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/errors"
)

func TestMatrixRejectsBadYear(t *testing.T) {
	api := newTestAPI()
	for _, path := range []string{"/conflict-matrix/abc/heatmap", "/conflict-matrix/1999/heatmap"} {
		resp := api.do(http.MethodGet, path, "", string(models.RoleViewer))
		assert.Equal(t, http.StatusBadRequest, resp.Code, path)
	}
}

func TestMatrixHighUsesDefaultThreshold(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodGet, "/conflict-matrix/2025/high", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 10, api.matrix.threshold)

	resp = api.do(http.MethodGet, "/conflict-matrix/2025/high?threshold=4", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 4, api.matrix.threshold)

	resp = api.do(http.MethodGet, "/conflict-matrix/2025/high?threshold=-1", "", string(models.RoleViewer))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMatrixCheckPair(t *testing.T) {
	api := newTestAPI()
	api.matrix.pairs["art|math"] = 12

	resp := api.do(http.MethodGet, "/conflict-matrix/2025/check?course1=math&course2=art&threshold=5", "", string(models.RoleViewer))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"hasConflict":true`)
	assert.Contains(t, resp.Body.String(), `"percentage":40`)

	resp = api.do(http.MethodGet, "/conflict-matrix/2025/check?course1=math", "", string(models.RoleViewer))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMatrixUpdatePair(t *testing.T) {
	api := newTestAPI()
	resp := api.do(http.MethodPost, "/conflict-matrix/2025/pairs", `{"course1Id":"math","course2Id":"art","delta":2}`, string(models.RoleRegistrar))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"course1_id":"art"`)
	assert.Contains(t, resp.Body.String(), `"conflict_count":2`)

	resp = api.do(http.MethodPost, "/conflict-matrix/2025/pairs", `{"course1Id":`, string(models.RoleRegistrar))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMatrixGenerateAndClear(t *testing.T) {
	api := newTestAPI()
	api.matrix.generated = 6

	resp := api.do(http.MethodPost, "/conflict-matrix/2025/generate", "", string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"entries":6`)

	resp = api.do(http.MethodDelete, "/conflict-matrix/2025", "", string(models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"removed":6`)
}

func TestMatrixImportMultipartAndRaw(t *testing.T) {
	api := newTestAPI()
	csv := "student_id,course_id,priority_weight\ns1,math,1\ns2,art,0\n"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "requests.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conflict-matrix/2025/requests/import", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Test-Role", string(models.RoleRegistrar))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":2`)
	assert.Equal(t, csv, api.matrix.imported)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/conflict-matrix/2025/requests/import", bytes.NewBufferString(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Test-Role", string(models.RoleRegistrar))
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduleYear":2025`)
}

func TestMatrixImportMissingFileField(t *testing.T) {
	api := newTestAPI()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("other", "x"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conflict-matrix/2025/requests/import", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubConflictMatrix struct {
	pairs     map[string]int
	generated int
	threshold int
	imported  string
}

func newStubConflictMatrix() *stubConflictMatrix {
	return &stubConflictMatrix{pairs: make(map[string]int)}
}

func pairKey(a, b string) string {
	a, b = models.OrderedPair(a, b)
	return a + "|" + b
}

func (s *stubConflictMatrix) GenerateConflictMatrix(ctx context.Context, year int) (int, error) {
	return s.generated, nil
}

func (s *stubConflictMatrix) ClearConflictMatrix(ctx context.Context, year int) (int64, error) {
	return int64(s.generated), nil
}

func (s *stubConflictMatrix) UpdateConflict(ctx context.Context, year int, courseA, courseB string, delta int) (*models.ConflictMatrixEntry, error) {
	if courseA == courseB {
		return nil, appErrors.Clone(appErrors.ErrValidation, "courses must differ")
	}
	key := pairKey(courseA, courseB)
	s.pairs[key] += delta
	first, second := models.OrderedPair(courseA, courseB)
	return &models.ConflictMatrixEntry{Course1ID: first, Course2ID: second, ScheduleYear: year, ConflictCount: s.pairs[key]}, nil
}

func (s *stubConflictMatrix) GetConflictHeatmap(ctx context.Context, year int) map[string]map[string]int {
	return map[string]map[string]int{}
}

func (s *stubConflictMatrix) GetSingletonConflicts(ctx context.Context, year int) ([]models.ConflictMatrixEntry, error) {
	return []models.ConflictMatrixEntry{}, nil
}

func (s *stubConflictMatrix) GetHighConflicts(ctx context.Context, year, threshold int) ([]models.ConflictMatrixEntry, error) {
	s.threshold = threshold
	return []models.ConflictMatrixEntry{}, nil
}

func (s *stubConflictMatrix) GetConflictsForCourse(ctx context.Context, year int, courseID string) ([]models.ConflictMatrixEntry, error) {
	return []models.ConflictMatrixEntry{}, nil
}

func (s *stubConflictMatrix) HasConflict(ctx context.Context, year int, courseA, courseB string, threshold int) (bool, error) {
	return s.pairs[pairKey(courseA, courseB)] >= threshold, nil
}

func (s *stubConflictMatrix) CalculateConflictPercentage(ctx context.Context, year int, courseA, courseB string) (float64, error) {
	return float64(s.pairs[pairKey(courseA, courseB)]) * 100 / 30, nil
}

func (s *stubConflictMatrix) ImportRequests(ctx context.Context, year int, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.imported = string(data)
	return 2, nil
}
