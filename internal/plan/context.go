package plan

import (
	"math/rand/v2"

	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/uid"
)

// Session is a live multipart upload tracked by a plan run.
type Session struct {
	UploadID string
	Key      string
	// Parts are appended by successful upload-part steps, numbered 1..N.
	Parts []invoker.CompletedPart
}

// Context is the mutable state threaded through one plan run. It is owned by
// a single Runner.Run call.
type Context struct {
	Bucket   string
	Key      string
	Body     string
	Download string
	Sessions map[string]*Session
}

// NewContext returns a Context. An empty bucket or key is replaced by a
// random name.
func NewContext(bucket, key, body, download string) *Context {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	if bucket == "" {
		bucket = uid.BucketName(rng)
	}
	if key == "" {
		key = uid.KeyName(rng)
	}
	return &Context{
		Bucket:   bucket,
		Key:      key,
		Body:     body,
		Download: download,
		Sessions: make(map[string]*Session),
	}
}

// Apply merges step overrides into the context.
func (c *Context) Apply(o Overrides) {
	if o.Bucket != nil {
		c.Bucket = *o.Bucket
	}
	if o.Key != nil {
		c.Key = *o.Key
	}
	if o.Body != nil {
		c.Body = *o.Body
	}
	if o.Download != nil {
		c.Download = *o.Download
	}
}

func (c *Context) params() invoker.Params {
	return invoker.Params{Bucket: c.Bucket, Key: c.Key, Body: c.Body, Download: c.Download}
}
