// Package invokertest provides an in-memory storage service implementing
// invoker.Invoker for tests.
package invokertest

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/bleepstore/integrity/internal/invoker"
)

// Call records one invocation.
type Call struct {
	Op     invoker.Op
	Params invoker.Params
}

type upload struct {
	bucket string
	key    string
	parts  map[int][]byte
}

// Store is an in-memory object store. Objects whose first byte is one of
// CorruptMarkers, and multipart objects with any part starting with one, are
// treated as corrupted and fail on read, which is how the service under test
// is expected to react to injected corruption.
type Store struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	uploads map[string]*upload
	faults  map[string]string
	corrupt map[string]bool
	calls   []Call
	nextID  int

	// CorruptMarkers are the first bytes that make get-object fail.
	CorruptMarkers []byte
	// UploadPartETag, when set, rewrites the ETag printed by upload-part
	// while list-parts keeps reporting the stored one.
	UploadPartETag func(etag string) string
	// Fail forces an operation to report the given exit status.
	Fail map[invoker.Op]int
}

// New returns an empty Store that rejects reads of objects marked with the
// zero-fill or first-byte markers.
func New() *Store {
	return &Store{
		buckets:        make(map[string]map[string][]byte),
		uploads:        make(map[string]*upload),
		faults:         make(map[string]string),
		corrupt:        make(map[string]bool),
		CorruptMarkers: []byte{'z', 'f', 'Z', 'F'},
		Fail:           make(map[invoker.Op]int),
	}
}

// Calls returns a copy of the recorded invocations.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Ops returns the operation names of the recorded invocations.
func (s *Store) Ops() []invoker.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]invoker.Op, len(s.calls))
	for i, c := range s.calls {
		ops[i] = c.Op
	}
	return ops
}

// Object returns the stored bytes of bucket/key.
func (s *Store) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	return data, ok
}

// PutObject stores data directly, bypassing the invoker.
func (s *Store) PutObject(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = data
}

// Uploads returns the number of live multipart uploads.
func (s *Store) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Fault returns the frequency of an enabled fault point.
func (s *Store) Fault(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[name]
	return f, ok
}

// Invoke implements invoker.Invoker. An enabled fault point named after an
// operation makes that operation fail.
func (s *Store) Invoke(ctx context.Context, op invoker.Op, p invoker.Params) (invoker.Result, error) {
	if err := ctx.Err(); err != nil {
		return invoker.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Params: p})

	if status, ok := s.Fail[op]; ok {
		return invoker.Result{ExitStatus: status, Stderr: []byte("forced failure")}, nil
	}
	if _, ok := s.faults[string(op)]; ok {
		return serviceError(op, "InjectedFault", "fault point enabled"), nil
	}

	switch op {
	case invoker.OpCreateBucket:
		if _, ok := s.buckets[p.Bucket]; ok {
			return serviceError(op, "BucketAlreadyOwnedByYou", "bucket exists"), nil
		}
		s.buckets[p.Bucket] = make(map[string][]byte)
		return jsonResult(map[string]string{"Location": "/" + p.Bucket})

	case invoker.OpDeleteBucket:
		objs, ok := s.buckets[p.Bucket]
		if !ok {
			return serviceError(op, "NoSuchBucket", "bucket does not exist"), nil
		}
		if len(objs) > 0 {
			return serviceError(op, "BucketNotEmpty", "bucket is not empty"), nil
		}
		delete(s.buckets, p.Bucket)
		return invoker.Result{}, nil

	case invoker.OpPutObject:
		objs, ok := s.buckets[p.Bucket]
		if !ok {
			return serviceError(op, "NoSuchBucket", "bucket does not exist"), nil
		}
		data, err := os.ReadFile(p.Body)
		if err != nil {
			return clientError(err), nil
		}
		objs[p.Key] = data
		delete(s.corrupt, p.Bucket+"/"+p.Key)
		return jsonResult(map[string]string{"ETag": etag(data)})

	case invoker.OpGetObject:
		data, res, ok := s.lookup(op, p)
		if !ok {
			return res, nil
		}
		if s.marked(data) || s.corrupt[p.Bucket+"/"+p.Key] {
			return serviceError(op, "BadDigest", "object data is corrupted"), nil
		}
		if err := os.WriteFile(p.Download, data, 0o644); err != nil {
			return clientError(err), nil
		}
		return jsonResult(map[string]any{"ETag": etag(data), "ContentLength": len(data)})

	case invoker.OpHeadObject:
		data, res, ok := s.lookup(op, p)
		if !ok {
			return res, nil
		}
		return jsonResult(map[string]any{"ETag": etag(data), "ContentLength": len(data)})

	case invoker.OpDeleteObject:
		if objs, ok := s.buckets[p.Bucket]; ok {
			delete(objs, p.Key)
		}
		delete(s.corrupt, p.Bucket+"/"+p.Key)
		return invoker.Result{}, nil

	case invoker.OpCreateMultipartUpload:
		if _, ok := s.buckets[p.Bucket]; !ok {
			return serviceError(op, "NoSuchBucket", "bucket does not exist"), nil
		}
		s.nextID++
		id := fmt.Sprintf("upload-%d", s.nextID)
		s.uploads[id] = &upload{bucket: p.Bucket, key: p.Key, parts: make(map[int][]byte)}
		return jsonResult(invoker.CreateMultipartUploadOutput{Bucket: p.Bucket, Key: p.Key, UploadID: id})

	case invoker.OpUploadPart:
		u, res, ok := s.upload(op, p)
		if !ok {
			return res, nil
		}
		if p.PartNumber < 1 || p.PartNumber > 10000 {
			return serviceError(op, "InvalidArgument", "part number out of range"), nil
		}
		data, err := os.ReadFile(p.Body)
		if err != nil {
			return clientError(err), nil
		}
		u.parts[p.PartNumber] = data
		tag := etag(data)
		if s.UploadPartETag != nil {
			tag = s.UploadPartETag(tag)
		}
		return jsonResult(invoker.UploadPartOutput{ETag: tag})

	case invoker.OpListParts:
		u, res, ok := s.upload(op, p)
		if !ok {
			return res, nil
		}
		out := invoker.ListPartsOutput{Bucket: p.Bucket, Key: p.Key, UploadID: p.UploadID, Parts: []invoker.Part{}}
		for _, n := range sortedKeys(u.parts) {
			out.Parts = append(out.Parts, invoker.Part{PartNumber: n, ETag: etag(u.parts[n]), Size: int64(len(u.parts[n]))})
		}
		return jsonResult(out)

	case invoker.OpCompleteMultipartUpload:
		u, res, ok := s.upload(op, p)
		if !ok {
			return res, nil
		}
		m, err := invoker.ReadManifest(p.Manifest)
		if err != nil {
			return clientError(err), nil
		}
		if len(m.Parts) == 0 {
			return serviceError(op, "MalformedXML", "no parts"), nil
		}
		var assembled []byte
		corrupted := false
		prev := 0
		for _, cp := range m.Parts {
			data, ok := u.parts[cp.PartNumber]
			if !ok || etag(data) != cp.ETag {
				return serviceError(op, "InvalidPart", fmt.Sprintf("part %d", cp.PartNumber)), nil
			}
			if cp.PartNumber <= prev {
				return serviceError(op, "InvalidPartOrder", "parts not ascending"), nil
			}
			prev = cp.PartNumber
			corrupted = corrupted || s.marked(data)
			assembled = append(assembled, data...)
		}
		if assembled == nil {
			assembled = []byte{}
		}
		s.buckets[u.bucket][u.key] = assembled
		if corrupted {
			s.corrupt[u.bucket+"/"+u.key] = true
		} else {
			delete(s.corrupt, u.bucket+"/"+u.key)
		}
		delete(s.uploads, p.UploadID)
		return jsonResult(map[string]string{"Bucket": p.Bucket, "Key": p.Key, "ETag": etag(assembled)})

	case invoker.OpAbortMultipartUpload:
		if _, res, ok := s.upload(op, p); !ok {
			return res, nil
		}
		delete(s.uploads, p.UploadID)
		return invoker.Result{}, nil

	case invoker.OpEnableFault:
		s.faults[p.Fault] = p.Frequency
		return invoker.Result{}, nil

	case invoker.OpDisableFault:
		delete(s.faults, p.Fault)
		return invoker.Result{}, nil
	}
	return invoker.Result{}, fmt.Errorf("unknown storage operation %q", op)
}

func (s *Store) marked(data []byte) bool {
	return len(data) > 0 && slices.Contains(s.CorruptMarkers, data[0])
}

func (s *Store) lookup(op invoker.Op, p invoker.Params) ([]byte, invoker.Result, bool) {
	objs, ok := s.buckets[p.Bucket]
	if !ok {
		return nil, serviceError(op, "NoSuchBucket", "bucket does not exist"), false
	}
	data, ok := objs[p.Key]
	if !ok {
		return nil, serviceError(op, "NoSuchKey", "key does not exist"), false
	}
	return data, invoker.Result{}, true
}

func (s *Store) upload(op invoker.Op, p invoker.Params) (*upload, invoker.Result, bool) {
	u, ok := s.uploads[p.UploadID]
	if !ok || u.bucket != p.Bucket || u.key != p.Key {
		return nil, serviceError(op, "NoSuchUpload", "upload does not exist"), false
	}
	return u, invoker.Result{}, true
}

func etag(data []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(data))
}

func sortedKeys(m map[int][]byte) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func serviceError(op invoker.Op, code, msg string) invoker.Result {
	return invoker.Result{
		ExitStatus: invoker.ExitServiceError,
		Stderr:     []byte(fmt.Sprintf("An error occurred (%s) when calling the %s operation: %s", code, op, msg)),
	}
}

func clientError(err error) invoker.Result {
	return invoker.Result{ExitStatus: invoker.ExitClientError, Stderr: []byte(err.Error())}
}

func jsonResult(v any) (invoker.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return invoker.Result{}, err
	}
	return invoker.Result{Stdout: data}, nil
}
