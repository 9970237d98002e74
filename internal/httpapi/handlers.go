package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reception-agent-go/internal/auth"
	"reception-agent-go/internal/pipeline"
	"reception-agent-go/internal/processor"
	"reception-agent-go/internal/store"
	"reception-agent-go/internal/types"
)

// MaxUploadBytes caps the size of an uploaded recording.
const MaxUploadBytes = 50 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Gate     *auth.Gate
	Sessions *processor.Service
	DB       Pinger
}

func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tok, exp, err := h.Gate.Login(req.Password, time.Now())
	if err != nil {
		requestLog(c).Warn("login rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "expires_at": exp})
}

// --- Review sessions ---

func (h Handlers) CreateSession(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	fh, err := c.FormFile("audio")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "multipart field \"audio\" required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}

	view, err := h.Sessions.Start(c.Request.Context(), pipeline.Upload{
		Audio:    audio,
		Format:   c.PostForm("format"),
		Filename: fh.Filename,
	})
	if err != nil {
		if processor.IsSessionError(err) {
			// The session exists; the reviewer can retry it.
			c.JSON(statusFor(err), view)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h Handlers) GetSession(c *gin.Context) {
	view, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h Handlers) RetrySession(c *gin.Context) {
	view, err := h.Sessions.Retry(c.Request.Context(), c.Param("id"))
	h.respondSession(c, view, err)
}

// draftPatch holds the reviewer-editable fields; nil means unchanged.
type draftPatch struct {
	CallerName  *string `json:"caller_name"`
	PhoneNumber *string `json:"phone_number"`
	Department  *string `json:"department"`
	Summary     *string `json:"summary"`
	Priority    *string `json:"priority"`
	AIResponse  *string `json:"ai_response"`
}

func (p draftPatch) apply(rec types.CallRecord) types.CallRecord {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&rec.CallerName, p.CallerName)
	set(&rec.PhoneNumber, p.PhoneNumber)
	set(&rec.Department, p.Department)
	set(&rec.Summary, p.Summary)
	set(&rec.AIResponse, p.AIResponse)
	if p.Priority != nil {
		rec.Priority = types.Priority(*p.Priority)
	}
	return rec
}

func (h Handlers) EditDraft(c *gin.Context) {
	var patch draftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, err := h.Sessions.Edit(c.Param("id"), patch.apply)
	h.respondSession(c, view, err)
}

func (h Handlers) ConfirmSession(c *gin.Context) {
	view, err := h.Sessions.Confirm(c.Request.Context(), c.Param("id"))
	h.respondSession(c, view, err)
}

func (h Handlers) DiscardSession(c *gin.Context) {
	if err := h.Sessions.Discard(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) respondSession(c *gin.Context, view processor.View, err error) {
	if err != nil {
		if view.ID != "" && processor.IsSessionError(err) {
			c.JSON(statusFor(err), view)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// --- Stored calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	limit, err1 := queryInt(c, "limit")
	offset, err2 := queryInt(c, "offset")
	if err := errors.Join(err1, err2); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	calls, err := h.Sessions.ListCalls(c.Request.Context(), store.Filter{
		Query:  c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if calls == nil {
		calls = []types.CallRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "count": len(calls)})
}

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	rec, err := h.Sessions.GetCall(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	id, ok := callID(c)
	if !ok {
		return
	}
	if err := h.Sessions.DeleteCall(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) Stats(c *gin.Context) {
	rep, err := h.Sessions.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h Handlers) Export(c *gin.Context) {
	var buf bytes.Buffer
	n, err := h.Sessions.Export(c.Request.Context(), &buf, c.Query("q"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	requestLog(c).WithField("rows", n).Info("exported calls")
	c.Header("Content-Disposition", `attachment; filename="calls.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func callID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
