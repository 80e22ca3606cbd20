// Package chunkid builds and parses the deterministic identifiers used for
// plans and chunks.
package chunkid

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	chunkIDRe  = regexp.MustCompile(`^(.+)_p(\d+)_c(\d+)$`)
	nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Parts are the components encoded in a chunk ID.
type Parts struct {
	PlanID     string
	PageNumber int
	ChunkIndex int
}

// New returns the chunk ID for a plan, page and per-page index.
func New(planID string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%s_p%d_c%d", planID, pageNumber, chunkIndex)
}

// Parse splits a chunk ID back into its parts. ok is false when id was not
// produced by New.
func Parse(id string) (Parts, bool) {
	m := chunkIDRe.FindStringSubmatch(id)
	if m == nil {
		return Parts{}, false
	}
	page, err := strconv.Atoi(m[2])
	if err != nil {
		return Parts{}, false
	}
	idx, err := strconv.Atoi(m[3])
	if err != nil {
		return Parts{}, false
	}
	return Parts{PlanID: m[1], PageNumber: page, ChunkIndex: idx}, true
}

// Reference renders a short human-readable handle such as "#12.3".
// Unparseable IDs are returned unchanged.
func Reference(id string) string {
	p, ok := Parse(id)
	if !ok {
		return id
	}
	return fmt.Sprintf("#%d.%d", p.PageNumber, p.ChunkIndex)
}

// Sort orders chunk IDs page-major, index-minor. IDs that do not parse go
// last, in their original relative order.
func Sort(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, okA := Parse(ids[i])
		b, okB := Parse(ids[j])
		if !okA || !okB {
			return okA && !okB
		}
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

// NewPlanID derives a plan ID from a file name: the extension is dropped,
// non-alphanumerics become underscores and a ULID keeps IDs unique and
// time-ordered.
func NewPlanID(filename string, now time.Time) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	sanitized := strings.ToLower(nonAlnumRe.ReplaceAllString(base, "_"))
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return "plan_" + sanitized + "_" + strings.ToLower(id.String())
}
