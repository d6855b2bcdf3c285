package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
	"sightline/internal/retry"
)

// HTTPDetector posts frames to an object detection service and reads back
// labelled boxes.
type HTTPDetector struct {
	Endpoint    string
	Timeout     time.Duration
	HTTPClient  *http.Client
	RetryConfig retry.Config
	Logger      *slog.Logger
}

func NewHTTPDetector(cfg config.DetectorConfig, logger *slog.Logger) *HTTPDetector {
	return &HTTPDetector{
		Endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		Timeout:     cfg.Timeout,
		HTTPClient:  &http.Client{},
		RetryConfig: retry.DefaultConfig().WithRetries(cfg.Retries),
		Logger:      logger,
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, frame model.Frame) ([]model.RawDetection, error) {
	if len(frame.Image) == 0 {
		return nil, nil
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	body, contentType, err := multipartImage(frame.Image)
	if err != nil {
		return nil, err
	}
	url := d.Endpoint + "/predict"
	return retry.Do(ctx, d.RetryConfig, nil, d.Logger, "detector", func(int) ([]model.RawDetection, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{Service: "detector", Code: resp.StatusCode, Body: string(data)}
		}
		return decodeDetections(data)
	})
}

func multipartImage(img []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// decodeDetections accepts either a bare list or an object wrapping the list
// under one of the detection keys.
func decodeDetections(data []byte) ([]model.RawDetection, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	switch v := payload.(type) {
	case []any:
		return parseDetections(v), nil
	case map[string]any:
		if list, ok := firstValue(lowerKeys(v), "detections", "objects", "predictions"); ok {
			if items, ok := list.([]any); ok {
				return parseDetections(items), nil
			}
		}
	}
	return nil, errors.New("decode detector response: unexpected shape")
}
