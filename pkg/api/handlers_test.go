package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solstice-Labs/academy/core/pkg/archive"
	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/engine"
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
	"github.com/Solstice-Labs/academy/core/pkg/model"
	"github.com/Solstice-Labs/academy/core/pkg/xpcap"
)

type apiRig struct {
	handler http.Handler
	token   string
	ledger  *ledger.Memory
	store   *content.MemoryStore
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	lgr := ledger.NewMemory(model.Config{MaxDailyXP: 100, SeasonClosed: true})
	store := content.NewMemoryStore()
	eng, err := engine.New(engine.Config{
		Ledger:  lgr,
		Store:   store,
		Archive: archive.NewMemoryArchive(),
		Caps:    xpcap.NewMemoryAccumulator(),
	})
	require.NoError(t, err)

	verifier := auth.NewVerifier([]byte("test-secret"))
	token, err := verifier.Issue("test-admin", time.Hour)
	require.NoError(t, err)

	server := NewServer(eng, store, verifier, nil)
	return &apiRig{
		handler: server.Handler(nil),
		token:   token,
		ledger:  lgr,
		store:   store,
	}
}

func (r *apiRig) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Health(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/seasons", map[string]any{"number": 1}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusUnauthorized, problem.Status)
}

func TestAPI_CreateSeason(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/seasons", map[string]any{"number": 1}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Signature)
	assert.NotEmpty(t, res.MintAddress)
}

func TestAPI_CloseSeasonTwice(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/seasons", map[string]any{"number": 1}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = rig.do(t, http.MethodPost, "/v1/seasons/close", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Policy rejection surfaces as 422, not a duplicated ledger write.
	rec = rig.do(t, http.MethodPost, "/v1/seasons/close", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_CreateCourse_PartialFailureIs202(t *testing.T) {
	rig := newAPIRig(t)
	rig.ledger.FailNext("create_course", ledger.ErrUnavailable)

	body := map[string]any{
		"course": map[string]any{"id": "c1", "lesson_count": 1, "active": true},
		"content": map[string]any{
			"course_id":      "c1",
			"title":          "Course c1",
			"schema_version": "1.0.0",
			"lessons":        []map[string]any{{"slug": "l1", "title": "Lesson 1"}},
		},
	}
	rec := rig.do(t, http.MethodPost, "/v1/courses", body, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var res engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.PartialFailure())
	assert.Contains(t, res.ContentRef, "c1@sha256:")
}

func TestAPI_GetCourse(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodGet, "/v1/courses/ghost", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := map[string]any{
		"course": map[string]any{"id": "c1", "lesson_count": 1, "active": true},
		"content": map[string]any{
			"course_id":      "c1",
			"title":          "Course c1",
			"schema_version": "1.0.0",
			"lessons":        []map[string]any{{"slug": "l1", "title": "Lesson 1"}},
		},
	}
	rec = rig.do(t, http.MethodPost, "/v1/courses", body, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = rig.do(t, http.MethodGet, "/v1/courses/c1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc model.CourseContent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Course c1", doc.Title)
}

func TestAPI_UpdateCourse_PathBodyMismatch(t *testing.T) {
	rig := newAPIRig(t)

	body := map[string]any{"course": map[string]any{"id": "other"}}
	rec := rig.do(t, http.MethodPut, "/v1/courses/c1", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RewardXP_PolicyViolation(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/seasons", map[string]any{"number": 1}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	// No minter registered, so issuance is refused by policy.
	rec = rig.do(t, http.MethodPost, "/v1/xp/grants", map[string]any{
		"minter": "ghost", "learner": "w1", "amount": 10,
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_LedgerFailureIs502(t *testing.T) {
	rig := newAPIRig(t)
	rig.ledger.FailNext("register_minter", ledger.ErrUnavailable)

	rec := rig.do(t, http.MethodPost, "/v1/minters", map[string]any{
		"signer": "backend", "max_xp_per_call": 50,
	}, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
