package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"sightline/internal/config"
	"sightline/internal/model"
	"sightline/internal/normalize"
)

var ErrEmptyPayload = errors.New("empty payload")

// Parser decodes JSON frames from any source, tolerating the key aliases
// used by common detector and camera bridges.
type Parser struct {
	defaultCamera string
	loc           *time.Location
	now           func() time.Time
}

func NewParser(cfg config.ParserConfig) *Parser {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		}
	}
	return &Parser{defaultCamera: cfg.DefaultCameraID, loc: loc, now: time.Now}
}

// ParseLine decodes one JSON frame. Blank lines yield nil without error.
func (p *Parser) ParseLine(line string) (*model.Frame, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	frames, err := p.ParseBytes([]byte(trim))
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	return &frames[0], nil
}

// ParseBytes decodes a JSON object or an array of objects.
func (p *Parser) ParseBytes(data []byte) ([]model.Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if data[0] == '[' {
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		out := make([]model.Frame, 0, len(list))
		for _, obj := range list {
			f, err := p.ParseMap(obj)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	f, err := p.ParseMap(obj)
	if err != nil {
		return nil, err
	}
	return []model.Frame{f}, nil
}

func (p *Parser) ParseMap(raw map[string]any) (model.Frame, error) {
	obj := lowerKeys(raw)
	f := model.Frame{
		ID:       firstString(obj, "id", "frame_id"),
		CameraID: firstString(obj, "camera", "camera_id", "source"),
	}
	if f.CameraID == "" {
		f.CameraID = p.defaultCamera
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if ts := firstString(obj, "timestamp", "time", "ts"); ts != "" {
		parsed, err := normalize.ParseTimestamp(ts, p.loc)
		if err != nil {
			return model.Frame{}, fmt.Errorf("parse timestamp: %w", err)
		}
		f.Timestamp = parsed
	} else {
		f.Timestamp = p.now().UTC()
	}
	if w, ok := firstFloat(obj, "width", "w"); ok {
		f.Width = int(w)
	}
	if h, ok := firstFloat(obj, "height", "h"); ok {
		f.Height = int(h)
	}
	if img := firstString(obj, "image", "frame", "jpeg"); img != "" {
		data, err := decodeImage(img)
		if err != nil {
			return model.Frame{}, fmt.Errorf("decode image: %w", err)
		}
		f.Image = data
	}
	if v, ok := firstValue(obj, "detections", "objects", "predictions"); ok {
		list, ok := v.([]any)
		if !ok {
			return model.Frame{}, errors.New("detections must be a list")
		}
		f.Detections = parseDetections(list)
	}
	if f.Detections == nil && len(f.Image) == 0 {
		return model.Frame{}, errors.New("frame has neither image nor detections")
	}
	return f, nil
}

// parseDetections keeps the well-formed entries of list. The result is never
// nil so an empty list still marks the frame as detected.
func parseDetections(list []any) []model.RawDetection {
	return lo.FilterMap(list, func(item any, _ int) (model.RawDetection, bool) {
		m, ok := item.(map[string]any)
		if !ok {
			return model.RawDetection{}, false
		}
		return parseDetection(m)
	})
}

func parseDetection(raw map[string]any) (model.RawDetection, bool) {
	obj := lowerKeys(raw)
	class := firstString(obj, "class", "label", "name")
	if class == "" {
		return model.RawDetection{}, false
	}
	v, ok := firstValue(obj, "box", "bbox", "xyxy")
	if !ok {
		return model.RawDetection{}, false
	}
	box, ok := toBox(v)
	if !ok {
		return model.RawDetection{}, false
	}
	conf, ok := firstFloat(obj, "confidence", "score", "conf")
	if !ok {
		conf = 1
	}
	return model.RawDetection{Class: class, Confidence: conf, Box: box}, true
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
