package model

// ResolveRequest names one document to load.
type ResolveRequest struct {
	URI string `json:"uri"`
}

// ResolveResponse carries exactly one of Document or Error.
//
// Scheme is the matched URI prefix; it is empty when no prefix matched.
type ResolveResponse struct {
	URI      string      `json:"uri"`
	Scheme   string      `json:"scheme,omitempty"`
	Document any         `json:"document,omitempty"`
	Error    *CodedError `json:"error,omitempty"`
}

// OK reports whether the document was resolved.
func (r ResolveResponse) OK() bool { return r.Error == nil }

type BatchRequest struct {
	URIs []string `json:"uris"`

	// Concurrency bounds in-flight resolutions; 0 means one per URI.
	Concurrency int `json:"concurrency,omitempty"`
}

// BatchResponse holds one response per requested URI, in request order.
type BatchResponse struct {
	Results []ResolveResponse `json:"results"`
}
