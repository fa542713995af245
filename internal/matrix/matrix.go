// Package matrix enumerates the single-object and multipart scenarios of an
// automated sweep.
package matrix

import (
	"fmt"
	"iter"

	"github.com/bleepstore/integrity/internal/corruption"
	"github.com/bleepstore/integrity/internal/payload"
	"github.com/bleepstore/integrity/internal/uid"
)

// Matrix holds the sweep dimensions. Sequences produced from it are lazy,
// finite and may be ranged over any number of times.
type Matrix struct {
	ObjectSizes []int64
	PartSizes   []int64
	// LastPartSizes are the trailing short-part sizes; zero means no trailing
	// part. Defaults to ObjectSizes when empty.
	LastPartSizes []int64
	PartCounts    []int
	Iterations    int
	Spec          corruption.Spec
	// NewID returns the unique identifier embedded in multipart keys.
	// Defaults to uid.New.
	NewID func() string
}

// Single is one put/get scenario.
type Single struct {
	Size          int64
	Iteration     int
	Key           string
	ExpectFailure bool
}

// Multipart is one multipart-upload scenario.
type Multipart struct {
	PartSize      int64
	LastPartSize  int64
	PartCount     int
	Key           string
	ExpectFailure bool
}

// SingleKey returns the object key of a single-object scenario.
func SingleKey(size int64, iteration int) string {
	return fmt.Sprintf("size=%d_i=%d", size, iteration)
}

// MultipartKey returns the object key of a multipart scenario.
func MultipartKey(partSize, lastPartSize int64, partCount int, id string) string {
	return fmt.Sprintf("part_size=%d_last_part_size=%d_part_nr=%d_uuid=%s", partSize, lastPartSize, partCount, id)
}

// Singles yields every size for every iteration, iteration-major.
func (m Matrix) Singles() iter.Seq[Single] {
	return func(yield func(Single) bool) {
		for i := 0; i < max(m.Iterations, 1); i++ {
			for _, size := range m.ObjectSizes {
				s := Single{
					Size:          size,
					Iteration:     i,
					Key:           SingleKey(size, i),
					ExpectFailure: m.Spec.ExpectFailure(size),
				}
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Multiparts yields the cross product part size × last-part size × part
// count. Every yielded key carries a fresh identifier.
func (m Matrix) Multiparts() iter.Seq[Multipart] {
	lasts := m.LastPartSizes
	if len(lasts) == 0 {
		lasts = m.ObjectSizes
	}
	newID := m.NewID
	if newID == nil {
		newID = uid.New
	}
	return func(yield func(Multipart) bool) {
		for _, ps := range m.PartSizes {
			for _, last := range lasts {
				for _, n := range m.PartCounts {
					mp := Multipart{
						PartSize:     ps,
						LastPartSize: last,
						PartCount:    n,
						Key:          MultipartKey(ps, last, n, newID()),
					}
					mp.ExpectFailure = m.Spec.ExpectFailure(mp.TotalSize())
					if !yield(mp) {
						return
					}
				}
			}
		}
	}
}

// Len returns the number of parts uploaded, counting the trailing part.
func (mp Multipart) Len() int {
	if mp.LastPartSize > 0 {
		return mp.PartCount + 1
	}
	return mp.PartCount
}

// TotalSize returns the size of the assembled object.
func (mp Multipart) TotalSize() int64 {
	return mp.PartSize*int64(mp.PartCount) + mp.LastPartSize
}

// PartPlan is the ordered list of payloads for a multipart scenario with at
// most one of them selected to carry the category's marker. Under a no-op
// category the selected part carries the no-op marker and nothing is
// corrupted.
type PartPlan struct {
	Parts     []payload.ObjectSpec
	Corrupted int
	Spec      corruption.Spec
}

// Plan lays out the parts of mp and picks the corrupted one from rng.
func (mp Multipart) Plan(rng corruption.Intner, spec corruption.Spec) PartPlan {
	p := PartPlan{Spec: spec, Parts: make([]payload.ObjectSpec, 0, mp.Len())}
	for i := 0; i < mp.PartCount; i++ {
		p.Parts = append(p.Parts, payload.ObjectSpec{Size: mp.PartSize, Marker: corruption.KeepMarker})
	}
	if mp.LastPartSize > 0 {
		p.Parts = append(p.Parts, payload.ObjectSpec{Size: mp.LastPartSize, Marker: corruption.KeepMarker})
	}
	p.Corrupted = corruption.PickCorruptedPart(rng, spec, len(p.Parts))
	if p.Corrupted >= 0 {
		p.Parts[p.Corrupted].Marker = spec.Marker()
	}
	return p
}

// Stamp reports whether part i gets its marker written. The corrupted part
// always does; the others only when keep markers are stamped.
func (p PartPlan) Stamp(i int, stampKeep bool) bool {
	if i == p.Corrupted && !p.Spec.IsNoop() {
		return true
	}
	return stampKeep
}

// Object returns the payload of a single-object scenario under spec. The
// category's marker identifies the payload on the wire, no-op categories
// included.
func (s Single) Object(spec corruption.Spec) payload.ObjectSpec {
	return payload.ObjectSpec{Size: s.Size, Marker: spec.Marker()}
}
