package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shootingstick/ss"
	"github.com/shootingstick/ss/value"
)

const maxBodyBytes = 64 << 20

var (
	errMissingCatalog = errors.New("catalog dependency required")
	errInvalidBody    = errors.New("request body must be a JSON object")
	errInvalidDocs    = errors.New("docs must be an array of objects")
	errInvalidKeys    = errors.New("keys must be an array")
)

type Dependencies struct {
	Catalog     *ss.Catalog
	Logger      *zap.Logger
	CORSOrigins []string
	Version     string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.CORSOrigins))

	handler := &httpHandler{
		catalog: deps.Catalog,
		logger:  logger,
		version: deps.Version,
	}

	router.GET("/", handler.handleWelcome)
	router.GET("/:db", handler.handleDatabaseInfo)
	router.PUT("/:db", handler.handleCreateDatabase)
	router.POST("/:db", handler.handlePostDocument)
	router.POST("/:db/_bulk_docs", handler.handleBulkDocs)
	router.GET("/:db/_design/:ddoc/_view/:view", handler.handleView)
	router.POST("/:db/_design/:ddoc/_view/:view", handler.handleView)
	router.GET("/:db/:docid", handler.handleGetDocument)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

type httpHandler struct {
	catalog *ss.Catalog
	logger  *zap.Logger
	version string
}

func (h *httpHandler) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"couchdb": "Welcome", "version": h.version, "features": []string{}})
}

func (h *httpHandler) handleCreateDatabase(c *gin.Context) {
	name := c.Param("db")
	if h.catalog.Exists(name) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "file_exists", "reason": "The database could not be created, the file already exists."})
		return
	}
	if _, err := h.catalog.Database(name); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

func (h *httpHandler) handleDatabaseInfo(c *gin.Context) {
	db, ok := h.existingDatabase(c)
	if !ok {
		return
	}
	info, err := db.Info()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	db, ok := h.existingDatabase(c)
	if !ok {
		return
	}
	doc, err := db.Get(c.Request.Context(), c.Param("docid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if doc.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "deleted"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *httpHandler) handlePostDocument(c *gin.Context) {
	db, ok := h.database(c)
	if !ok {
		return
	}
	obj, err := readObject(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": err.Error()})
		return
	}
	doc := ss.DocumentFromObject(obj)
	if !obj.Has("_id") {
		doc.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	results, err := db.BulkWrite(c.Request.Context(), []ss.Document{doc})
	if err != nil {
		h.writeError(c, err)
		return
	}
	res := results[0]
	if err := res.Err(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": res.ID, "rev": res.Rev})
}

func (h *httpHandler) handleBulkDocs(c *gin.Context) {
	db, ok := h.database(c)
	if !ok {
		return
	}
	obj, err := readObject(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": err.Error()})
		return
	}
	raw, _ := obj.Get("docs")
	items, ok := raw.([]any)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": errInvalidDocs.Error()})
		return
	}
	docs := make([]ss.Document, 0, len(items))
	for _, item := range items {
		d, ok := item.(value.Object)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": errInvalidDocs.Error()})
			return
		}
		docs = append(docs, ss.DocumentFromObject(d))
	}

	results, err := db.BulkWrite(c.Request.Context(), docs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, results)
}

func (h *httpHandler) handleView(c *gin.Context) {
	db, ok := h.existingDatabase(c)
	if !ok {
		return
	}
	opt, err := ss.ParseQueryOptions(c.Request.URL.Query())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if c.Request.Method == http.MethodPost {
		obj, err := readObject(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": err.Error()})
			return
		}
		if raw, found := obj.Get("keys"); found {
			keys, ok := raw.([]any)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": errInvalidKeys.Error()})
				return
			}
			opt.Keys = ss.Some(keys)
			if err := opt.Validate(); err != nil {
				h.writeError(c, err)
				return
			}
		}
	}

	view, err := db.View(c.Param("ddoc"), c.Param("view"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	rows, err := view.Query(c.Request.Context(), opt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rows.Close()

	if err := streamRows(c, rows, opt.UpdateSeq); err != nil {
		h.logger.Warn("view stream aborted",
			zap.String("db", db.Name()),
			zap.String("view", c.Param("ddoc")+"/"+c.Param("view")),
			zap.Error(err))
	}
}

func (h *httpHandler) database(c *gin.Context) (*ss.DB, bool) {
	db, err := h.catalog.Database(c.Param("db"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return db, true
}

// existingDatabase is database for endpoints that must not create it.
func (h *httpHandler) existingDatabase(c *gin.Context) (*ss.DB, bool) {
	name := c.Param("db")
	if ss.ValidDBName(name) && !h.catalog.Exists(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "Database does not exist."})
		return nil, false
	}
	return h.database(c)
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	var missing *ss.MissingReferenceError
	switch {
	case errors.Is(err, ss.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "illegal_database_name", "reason": err.Error()})
	case errors.Is(err, ss.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "query_parse_error", "reason": err.Error()})
	case errors.Is(err, ss.ErrViewNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "missing_named_view"})
	case errors.Is(err, ss.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "missing"})
	case errors.Is(err, ss.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "reason": "Document update conflict."})
	case errors.Is(err, ss.ErrNoID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "reason": "Document must have an _id string."})
	case errors.As(err, &missing):
		h.logger.Error("index references a missing document", zap.String("id", missing.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_reference", "reason": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "reason": err.Error()})
	}
}

func readObject(c *gin.Context) (value.Object, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, errInvalidBody
	}
	return obj, nil
}
