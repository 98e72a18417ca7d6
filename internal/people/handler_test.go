package people

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CRUD(t *testing.T) {
	gin.SetMode(gin.TestMode)
	purger := &fakePurger{n: 1}
	svc := newTestService(t, purger)
	r := gin.New()
	api := r.Group("/api/v1")
	RegisterRoutes(api, api, svc)

	w := do(r, http.MethodPost, "/api/v1/people", map[string]string{"enrollment_code": "APP20240001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/people", RegisterRequest{EnrollmentCode: "APP20240001", DisplayName: "Asha"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created PersonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "/people/"+created.PersonID, w.Header().Get("Location"))

	w = do(r, http.MethodPost, "/api/v1/people", RegisterRequest{EnrollmentCode: "app20240001", DisplayName: "Dup"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/v1/people?enrollment_code=APP20240001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Total)

	w = do(r, http.MethodPatch, "/api/v1/people/"+created.PersonID, map[string]string{"phone": "123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/people/"+created.PersonID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got PersonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "123", got.Phone)

	w = do(r, http.MethodDelete, "/api/v1/people/"+created.PersonID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var del DeleteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &del))
	assert.EqualValues(t, 1, del.PurgedRecordCount)

	w = do(r, http.MethodGet, "/api/v1/people/"+created.PersonID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_LookupByCodeAndPhone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, &fakePurger{})
	r := gin.New()
	api := r.Group("/api/v1")
	RegisterRoutes(api, api, svc)

	w := do(r, http.MethodPost, "/api/v1/people", RegisterRequest{
		EnrollmentCode: "APP20240001", DisplayName: "Asha", Phone: "09012345678",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created PersonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	// 電話番号の無い人は電話番号ログインでは見つからない
	w = do(r, http.MethodPost, "/api/v1/people", RegisterRequest{EnrollmentCode: "APP20240002", DisplayName: "Ben"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 全角・小文字でも一致する
	w = do(r, http.MethodPost, "/api/v1/people/lookup", LookupRequest{EnrollmentCode: "ａｐｐ20240001", Phone: "０９０12345678"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got PersonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.PersonID, got.PersonID)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"wrong phone", LookupRequest{EnrollmentCode: "APP20240001", Phone: "09000000000"}, http.StatusNotFound},
		{"phone of someone else", LookupRequest{EnrollmentCode: "APP20240002", Phone: "09012345678"}, http.StatusNotFound},
		{"unknown code", LookupRequest{EnrollmentCode: "APP99999999", Phone: "09012345678"}, http.StatusNotFound},
		{"missing phone", map[string]string{"enrollment_code": "APP20240001"}, http.StatusBadRequest},
		{"blank phone", LookupRequest{EnrollmentCode: "APP20240001", Phone: "  "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/people/lookup", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
