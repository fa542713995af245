package plan

// Operation is the closed set of plan verbs. Parameters shared by most verbs
// (bucket, key, body, download) come from the test context; verb-specific
// ones travel on the value.
type Operation interface {
	Verb() string
	isOperation()
}

type (
	CreateBucket struct{}
	DeleteBucket struct{}
	PutObject    struct{}
	// GetObject optionally checks the download against the concatenation of
	// Match when the read is expected to succeed.
	GetObject struct {
		Match []string
	}
	HeadObject   struct{}
	DeleteObject struct{}
	EnableFault  struct {
		Name      string
		Frequency string
	}
	DisableFault struct {
		Name string
	}
	CreateMultipart   struct{}
	UploadPart        struct{}
	CompleteMultipart struct{}
	ListParts         struct{}
	AbortMultipart    struct{}
	// Unrecognized is an operation name outside the registry. It is
	// reported and skipped.
	Unrecognized struct {
		Name string
	}
)

func (CreateBucket) Verb() string      { return "create-bucket" }
func (DeleteBucket) Verb() string      { return "delete-bucket" }
func (PutObject) Verb() string         { return "put-object" }
func (GetObject) Verb() string         { return "get-object" }
func (HeadObject) Verb() string        { return "head-object" }
func (DeleteObject) Verb() string      { return "delete-object" }
func (EnableFault) Verb() string       { return "enable-fi" }
func (DisableFault) Verb() string      { return "disable-fi" }
func (CreateMultipart) Verb() string   { return "create-multipart" }
func (UploadPart) Verb() string        { return "upload-part" }
func (CompleteMultipart) Verb() string { return "complete-multipart" }
func (ListParts) Verb() string         { return "list-parts" }
func (AbortMultipart) Verb() string    { return "abort-multipart" }
func (u Unrecognized) Verb() string    { return u.Name }

func (CreateBucket) isOperation()      {}
func (DeleteBucket) isOperation()      {}
func (PutObject) isOperation()         {}
func (GetObject) isOperation()         {}
func (HeadObject) isOperation()        {}
func (DeleteObject) isOperation()      {}
func (EnableFault) isOperation()       {}
func (DisableFault) isOperation()      {}
func (CreateMultipart) isOperation()   {}
func (UploadPart) isOperation()        {}
func (CompleteMultipart) isOperation() {}
func (ListParts) isOperation()         {}
func (AbortMultipart) isOperation()    {}
func (Unrecognized) isOperation()      {}
