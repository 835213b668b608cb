package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shootingstick/ss"
	"github.com/shootingstick/ss/value"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	catalog := ss.NewCatalog(ss.CatalogOptions{
		DataDir: t.TempDir(),
		Options: ss.Options{
			Logger:   logger,
			InMemory: true,
			ViewRoot: t.TempDir(),
			Indexers: map[string]ss.Indexer{
				"app/by_v": ss.IndexerFunc(func(doc value.Object, emit func(key, val any)) error {
					if v, ok := doc.Get("v"); ok {
						emit(v, nil)
					}
					if ref, ok := doc.Get("ref"); ok {
						emit("ref", value.Object{{Key: "_id", Value: ref}})
					}
					return nil
				}),
			},
		},
	})
	t.Cleanup(func() { catalog.Close() })

	handler, err := NewHTTPHandler(Dependencies{Catalog: catalog, Logger: logger, Version: "test"})
	require.NoError(t, err)
	return handler
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type viewResponse struct {
	TotalRows int     `json:"total_rows"`
	Offset    int     `json:"offset"`
	UpdateSeq *uint64 `json:"update_seq"`
	Rows      []struct {
		ID    string         `json:"id"`
		Key   any            `json:"key"`
		Value any            `json:"value"`
		Doc   map[string]any `json:"doc"`
	} `json:"rows"`
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out viewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewHTTPHandlerRequiresCatalog(t *testing.T) {
	_, err := NewHTTPHandler(Dependencies{})
	assert.ErrorIs(t, err, errMissingCatalog)
}

func TestWelcome(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Welcome", body["couchdb"])
	assert.Equal(t, "test", body["version"])
}

func TestDatabaseLifecycle(t *testing.T) {
	h := newTestHandler(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/books", "").Code)
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPut, "/books", "").Code)
	assert.Equal(t, http.StatusPreconditionFailed, do(t, h, http.MethodPut, "/books", "").Code)

	rec := do(t, h, http.MethodPut, "/Books", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "illegal_database_name", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/books", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.Equal(t, "books", info["db_name"])
	assert.Equal(t, 0.0, info["doc_count"])
}

func TestPostAndGetDocument(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/books", `{"_id":"a","title":"Dune"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "a", created["id"])
	rev := created["rev"].(string)
	assert.True(t, strings.HasPrefix(rev, "1-"), rev)

	rec = do(t, h, http.MethodPost, "/books", `{"_id":"a","title":"Dune Messiah"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/books", `{"_id":"a","_rev":"`+rev+`","title":"Dune Messiah"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/books/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"_id":"a","_rev":"`+decode(t, rec)["_rev"].(string)+`","title":"Dune Messiah"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/books/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nodb/a", "").Code)
}

func TestPostDocumentAssignsID(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/books", `{"title":"Untitled"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/books/"+id, "").Code)
}

func TestPostDocumentRejectsBadBodies(t *testing.T) {
	h := newTestHandler(t)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/books", `[1,2]`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/books", `{"_id":`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/books", `{"_id":""}`).Code)
}

func TestBulkDocs(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/books/_bulk_docs", `{"docs":[{"_id":"a","v":1},{"v":2},{"_id":"a","v":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 3)
	assert.Equal(t, true, results[0]["ok"])
	assert.Equal(t, "noid", results[1]["error"])
	assert.Equal(t, "conflict", results[2]["error"])

	rev := results[0]["rev"].(string)
	rec = do(t, h, http.MethodPost, "/books/_bulk_docs", `{"docs":[{"_id":"a","_rev":"`+rev+`","_deleted":true}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodGet, "/books/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "deleted", decode(t, rec)["reason"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/books/_bulk_docs", `{"docs":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/books/_bulk_docs", `{"docs":[1]}`).Code)
}

func TestViewQuery(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/books/_bulk_docs", `{"docs":[{"_id":"a","v":3},{"_id":"b","v":1},{"_id":"c","v":2},{"_id":"d","ref":"b"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	res := decodeView(t, do(t, h, http.MethodGet, "/books/_design/app/_view/by_v", ""))
	assert.Equal(t, 4, res.TotalRows)
	assert.Equal(t, 0, res.Offset)
	assert.Nil(t, res.UpdateSeq)
	require.Len(t, res.Rows, 4)
	assert.Equal(t, []string{"b", "c", "a", "d"}, []string{res.Rows[0].ID, res.Rows[1].ID, res.Rows[2].ID, res.Rows[3].ID})
	assert.Equal(t, 1.0, res.Rows[0].Key)

	res = decodeView(t, do(t, h, http.MethodGet, "/books/_design/app/_view/by_v?startkey=2&endkey=3&inclusive_end=false&update_seq=true", ""))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "c", res.Rows[0].ID)
	require.NotNil(t, res.UpdateSeq)
	assert.Equal(t, uint64(4), *res.UpdateSeq)

	res = decodeView(t, do(t, h, http.MethodGet, "/books/_design/app/_view/by_v?descending=true&limit=2&skip=1", ""))
	assert.Equal(t, 1, res.Offset)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].ID)
	assert.Equal(t, "c", res.Rows[1].ID)

	res = decodeView(t, do(t, h, http.MethodGet, `/books/_design/app/_view/by_v?key="ref"&include_docs=true`, ""))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "d", res.Rows[0].ID)
	assert.Equal(t, "b", res.Rows[0].Doc["_id"])

	res = decodeView(t, do(t, h, http.MethodPost, "/books/_design/app/_view/by_v", `{"keys":[3,1]}`))
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].ID)
	assert.Equal(t, "b", res.Rows[1].ID)
}

func TestViewQueryErrors(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPut, "/books", "").Code)

	rec := do(t, h, http.MethodGet, "/books/_design/app/_view/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing_named_view", decode(t, rec)["reason"])

	rec = do(t, h, http.MethodGet, "/books/_design/app/_view/by_v?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query_parse_error", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/books/_design/app/_view/by_v?reduce=true", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/books/_design/app/_view/by_v?key=1", `{"keys":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/books/_design/app/_view/by_v", `{"keys":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nodb/_design/app/_view/by_v", "").Code)
}

func TestViewQueryEmpty(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPut, "/books", "").Code)

	rec := do(t, h, http.MethodGet, "/books/_design/app/_view/by_v", "")
	res := decodeView(t, rec)
	assert.Zero(t, res.TotalRows)
	assert.Empty(t, res.Rows)
	assert.Equal(t, "{\"total_rows\":0,\"offset\":0,\"rows\":[\r\n]}\r\n", rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/books", http.NoBody)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
