package handler

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/models"
)

// Download returns a handler for POST and GET /api/v1/download. The remote
// bytes are streamed through untouched as an attachment.
func Download(dl MediaOpener, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DownloadRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, models.NewAdError(models.ErrCodeInvalidInput, models.MsgURLRequired, err), "")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		d, err := dl.Open(ctx, req.URL)
		if err != nil {
			respondError(c, err, "")
			return
		}
		defer d.Body.Close()

		c.Header("Content-Type", d.ContentType)
		c.Header("Content-Disposition", contentDisposition(req.Filename))
		if d.ContentLength >= 0 {
			c.Header("Content-Length", strconv.FormatInt(d.ContentLength, 10))
		}
		c.Status(http.StatusOK)

		n, err := io.Copy(c.Writer, d.Body)
		if err != nil {
			// Headers are already sent; the client sees a truncated body.
			slog.Warn("download stream interrupted", "bytes", n, "error", err)
			return
		}
		slog.Debug("download streamed", "bytes", n)
	}
}

// contentDisposition builds an attachment header, with a filename when one
// was requested.
func contentDisposition(filename string) string {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if filename == "" || name == "." || name == "/" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
