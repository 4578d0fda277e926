package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// imageData is an image read from disk, ready to attach to a request
type imageData struct {
	bytes    []byte
	mimeType string
}

// base64 returns the standard base64 encoding of the image bytes
func (i imageData) base64() string {
	return base64.StdEncoding.EncodeToString(i.bytes)
}

// dataURL returns the image as an inline data: URL
func (i imageData) dataURL() string {
	return "data:" + i.mimeType + ";base64," + i.base64()
}

// loadImage reads the image at path and works out its MIME type
func loadImage(path string) (imageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imageData{}, fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return imageData{}, fmt.Errorf("reading image: %s is empty", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var mimeType string
	switch ext {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".png":
		mimeType = "image/png"
	default:
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	// strip parameters like "; charset=utf-8"
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return imageData{bytes: data, mimeType: mimeType}, nil
}

// completeFunc sends one request to a provider and returns the model's raw text reply
type completeFunc func(ctx context.Context, img imageData) (string, error)

// analyze runs the provider-independent part of Analyze: loading, timeout, parsing and
// converting every failure into an error result
func analyze(ctx context.Context, logger *slog.Logger, provider string, timeout time.Duration, imagePath string, complete completeFunc) Result {
	rid := uuid.New().String()
	start := time.Now()

	logger.Info("scan.analyze.start", "req_id", rid, "provider", provider, "image", imagePath)

	img, err := loadImage(imagePath)
	if err != nil {
		logger.Error("scan.analyze.load_error", "req_id", rid, "error", err)
		return ErrorResult(err.Error())
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := complete(ctx, img)
	if err != nil {
		logger.Error("scan.analyze.request_error",
			"req_id", rid, "provider", provider, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ErrorResult(err.Error())
	}

	result, err := ParseResponse(text)
	if err != nil {
		logger.Error("scan.analyze.parse_error",
			"req_id", rid, "provider", provider, "error", err, "content", text,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return ErrorResult(err.Error())
	}

	logger.Info("scan.analyze.ok",
		"req_id", rid, "provider", provider, "kind", result.Kind,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result
}
