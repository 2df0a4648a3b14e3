// Package providers implements the LM Studio wire format: request bodies,
// response and stream chunk parsing, and model listings.
package providers

// Provider defines the interface the completion client talks to.
type Provider interface {
	// Core identification and endpoints
	Name() string
	Endpoint() string
	ModelsEndpoint() string
	StatusEndpoint() string
	Headers() map[string]string

	// Request preparation
	PrepareRequest(req *Request) ([]byte, error)
	PrepareStreamRequest(req *Request) ([]byte, error)

	// Response handling
	ParseResponse(body []byte) (*Response, error)
	ParseStreamResponse(chunk []byte) (*Response, error)
	ParseModels(body []byte) ([]ModelDescriptor, error)
}
