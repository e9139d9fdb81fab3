package decision

import (
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"sdclean/internal/scan"
)

// Veto lets a caller reject accepted junk without touching the walker.
type Veto interface {
	Name() string
	Veto(c *scan.Candidate) bool
}

type vetoFunc struct {
	name string
	fn   func(*scan.Candidate) bool
}

func (v vetoFunc) Name() string                { return v.name }
func (v vetoFunc) Veto(c *scan.Candidate) bool { return v.fn(c) }

// NewVeto wraps fn as a named veto.
func NewVeto(name string, fn func(*scan.Candidate) bool) Veto {
	return vetoFunc{name: name, fn: fn}
}

// MinAge rejects candidates modified less than d ago. Empty directories are
// exempt: removing their contents during the run updates their mtime.
func MinAge(d time.Duration) Veto {
	return minAge(d, time.Now)
}

func minAge(d time.Duration, now func() time.Time) Veto {
	return NewVeto("min-age", func(c *scan.Candidate) bool {
		if d <= 0 || c.Kind == scan.KindEmptyDir {
			return false
		}
		return now().Sub(c.ModTime) < d
	})
}

// MinSize rejects candidates smaller than n bytes. Empty directories are
// exempt.
func MinSize(n int64) Veto {
	return NewVeto("min-size", func(c *scan.Candidate) bool {
		if n <= 0 || c.Kind == scan.KindEmptyDir {
			return false
		}
		return c.Size() < n
	})
}

var mediaPrefixes = []string{"image/", "video/", "audio/"}

// MediaContent rejects regular files whose content sniffs as image, video,
// audio or PDF regardless of their name, so a photo renamed to .tmp by a
// misbehaving app survives. A file that cannot be read is rejected too.
func MediaContent() Veto {
	return NewVeto("media-content", func(c *scan.Candidate) bool {
		if c.Kind != scan.KindFile || c.Symlink {
			return false
		}
		mt, err := mimetype.DetectFile(c.Path)
		if err != nil {
			return true
		}
		return isMedia(mt)
	})
}

func isMedia(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/pdf") {
			return true
		}
		for _, p := range mediaPrefixes {
			if strings.HasPrefix(m.String(), p) {
				return true
			}
		}
	}
	return false
}
