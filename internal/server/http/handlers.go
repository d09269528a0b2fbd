package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	AccessKey    string `json:"access_key" binding:"required"`
	SecretKey    string `json:"secret_key" binding:"required"`
	SessionToken string `json:"session_token"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	Message string `json:"message"`
	*models.BatchResult
}

type presignResponse struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *HTTPServer) healthz(c *gin.Context) {
	if s.svc.Health != nil {
		if err := s.svc.Health.PingContext(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", common.ErrValidation, err))
		return
	}

	token, err := s.svc.Sessions.Login(c.Request.Context(), models.Credentials{
		AccessKey:    req.AccessKey,
		SecretKey:    req.SecretKey,
		SessionToken: req.SessionToken,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setSessionCookie(c, token)
	c.JSON(http.StatusOK, loginResponse{Token: token})
}

func (s *HTTPServer) logout(c *gin.Context) {
	s.clearSessionCookie(c)
	c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *HTTPServer) upload(c *gin.Context) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", common.ErrValidation, err))
		return
	}

	form, err := readUploadForm(mr, s.opts.MaxMultipartMemory, s.opts.SpoolDir)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer func() {
		if err := form.Close(); err != nil {
			s.logger.Warn(c.Request.Context(), "release upload spool", "error", err)
		}
	}()

	res, err := s.svc.Uploads.ProcessBatch(c.Request.Context(), models.UploadRequest{
		Items:       form.items,
		Identifiers: form.ids,
		Bucket:      form.bucket,
		Credentials: credentialsFrom(c),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{Message: res.Message(), BatchResult: res})
}

func (s *HTTPServer) listFiles(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}

	files, err := s.svc.Catalog.ListFiles(c.Request.Context(), c.Query("folder"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *HTTPServer) listBuckets(c *gin.Context) {
	buckets, err := s.svc.Storage.ListBuckets(c.Request.Context(), credentialsFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (s *HTTPServer) listObjects(c *gin.Context) {
	listing, err := s.svc.Storage.ListObjects(c.Request.Context(), credentialsFrom(c),
		c.Param("bucket"), c.Query("prefix"), c.Query("delimiter"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *HTTPServer) presign(c *gin.Context) {
	ttl, err := ttlQuery(c.Query("ttl"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	u, err := s.svc.Storage.Presign(c.Request.Context(), credentialsFrom(c), c.Query("bucket"), c.Query("key"), ttl)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := presignResponse{URL: u}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		resp.ExpiresAt = &exp
	}
	c.JSON(http.StatusOK, resp)
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", common.ErrValidation, name)
	}
	return n, nil
}

// ttlQuery accepts a Go duration ("90m") or a number of seconds. Empty
// means the server default.
func ttlQuery(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%w: ttl must be positive", common.ErrValidation)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid ttl %q", common.ErrValidation, v)
	}
	return d, nil
}
