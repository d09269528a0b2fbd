package models

// UploadRequest is one batch call. Items and Identifiers are paired by
// position and must have the same length.
type UploadRequest struct {
	Items       []FileItem
	Identifiers []string
	// Bucket overrides the configured default bucket when non-empty.
	Bucket string
	// Credentials, when nil, make the store use its ambient identity.
	Credentials *Credentials
}

// ItemStatus is the outcome of one file in a batch.
type ItemStatus string

const (
	StatusSuccess      ItemStatus = "success"
	StatusFailed       ItemStatus = "failed"
	StatusNotProcessed ItemStatus = "not_processed"
)

// ErrorKind classifies an item failure.
type ErrorKind string

const (
	KindTransfer          ErrorKind = "transfer"
	KindCatalog           ErrorKind = "catalog"
	KindTimeout           ErrorKind = "timeout"
	KindUnknownIdentifier ErrorKind = "unknown_identifier"
	KindCancelled         ErrorKind = "cancelled"
)

// ItemError describes why an item did not succeed. Divergent is set when
// the object was stored but no catalog row was written for it.
type ItemError struct {
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	Divergent bool      `json:"divergent,omitempty"`
}

// ItemResult is the outcome of a single file/identifier pair.
type ItemResult struct {
	Index      int        `json:"index"`
	Identifier string     `json:"id"`
	FileName   string     `json:"filename"`
	Bucket     string     `json:"bucket,omitempty"`
	ObjectKey  string     `json:"object_key,omitempty"`
	Status     ItemStatus `json:"status"`
	Error      *ItemError `json:"error,omitempty"`
}

// BatchResult lists every processed item in input order. Items with an
// empty file name are skipped and only counted.
type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Items   []ItemResult `json:"files"`
	Skipped int          `json:"skipped"`
}

// Succeeded returns the number of items with StatusSuccess.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Divergent returns the items that were stored but not cataloged.
func (r *BatchResult) Divergent() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Error != nil && it.Error.Divergent {
			out = append(out, it)
		}
	}
	return out
}

// AllSucceeded reports whether every processed item succeeded.
func (r *BatchResult) AllSucceeded() bool {
	return r.Succeeded() == len(r.Items)
}

const (
	MessageAllUploaded = "Files uploaded successfully"
	MessageSomeFailed  = "Some files failed to upload"
)

// Message is the human-readable batch summary.
func (r *BatchResult) Message() string {
	if r.AllSucceeded() {
		return MessageAllUploaded
	}
	return MessageSomeFailed
}
