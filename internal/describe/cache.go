package describe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sightline/internal/model"
)

// Cache persists generated descriptions by scene key. storage.Store satisfies it.
type Cache interface {
	CachedDescription(ctx context.Context, key string) (string, bool, error)
	CacheDescription(ctx context.Context, key, objects, text string) error
}

const distanceBucket = 0.5

// CacheKey identifies a scene by class, distance rounded to half a meter and
// position of each relevant detection, in order.
func CacheKey(lang string, dets []model.Detection) string {
	parts := make([]string, 0, len(dets)+1)
	parts = append(parts, strings.ToLower(lang))
	for _, d := range dets {
		bucket := math.Round(d.Distance/distanceBucket) * distanceBucket
		parts = append(parts, fmt.Sprintf("%s:%.1f:%s", d.Class, bucket, d.Position))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func encodeObjects(dets []model.Detection) string {
	data, err := json.Marshal(dets)
	if err != nil {
		return "[]"
	}
	return string(data)
}
