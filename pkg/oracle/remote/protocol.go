// Package remote serves and consumes embedding oracles over WebSocket.
//
// Speaker models usually live in a separate process next to an autograd
// runtime. [Handler] exposes any [perturb.Oracle] on an HTTP endpoint and
// [Client] implements perturb.Oracle on top of such an endpoint, so the
// optimizer can run against a model it cannot link.
//
// # Wire format
//
// Each WebSocket binary message carries one msgpack-encoded frame. The
// client sends requests and reads exactly one response per request:
//
//	{"id":1, "op":"embed",      "samples":[...]}       → {"id":1, "embedding":[...]}
//	{"id":2, "op":"embed_grad", "samples":[...]}       → {"id":2, "embedding":[...]}
//	{"id":3, "op":"backward",   "ref":2, "upstream":[...]} → {"id":3, "gradient":[...]}
//
// A "backward" request refers to an earlier "embed_grad" by id and may be
// issued once per embed_grad. Failures are reported in the "error" field.
package remote

// Operations.
const (
	opEmbed     = "embed"
	opEmbedGrad = "embed_grad"
	opBackward  = "backward"
)

type request struct {
	ID         uint64    `msgpack:"id"`
	Op         string    `msgpack:"op"`
	SampleRate int       `msgpack:"sample_rate,omitempty"`
	Samples    []float64 `msgpack:"samples,omitempty"`
	Ref        uint64    `msgpack:"ref,omitempty"`
	Upstream   []float64 `msgpack:"upstream,omitempty"`
}

type response struct {
	ID        uint64    `msgpack:"id"`
	Embedding []float64 `msgpack:"embedding,omitempty"`
	Gradient  []float64 `msgpack:"gradient,omitempty"`
	Error     string    `msgpack:"error,omitempty"`
}
