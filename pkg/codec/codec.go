// Package codec implements the byte-handler pipeline applied to a
// serialized page before it reaches the backing store: compression,
// encryption and checksumming, composed left-to-right on write and
// right-to-left on read. Each handler must be a strict inverse of itself;
// a decode failure is fatal for the page it was guarding.
package codec

import "stratadb/pkg/errs"

// Handler is one stage of the byte-handler pipeline.
type Handler interface {
	// Name identifies the handler for resource-config byteHandlerClasses.
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Pipeline is an ordered sequence of Handlers.
type Pipeline struct {
	handlers []Handler
}

// NewPipeline builds a pipeline from the given handlers, applied in the
// given order on Encode and in reverse order on Decode.
func NewPipeline(handlers ...Handler) *Pipeline {
	return &Pipeline{handlers: handlers}
}

// Names returns the handler names in encode order, suitable for persisting
// into a resource's byteHandlerClasses config field.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.handlers))
	for i, h := range p.handlers {
		names[i] = h.Name()
	}
	return names
}

// Encode runs every handler's Encode in order.
func (p *Pipeline) Encode(data []byte) ([]byte, error) {
	var err error
	for _, h := range p.handlers {
		data, err = h.Encode(data)
		if err != nil {
			return nil, errs.WrapIO(err)
		}
	}
	return data, nil
}

// Decode runs every handler's Decode in reverse order. A failure here is
// fatal for the page being decoded: the caller should treat it as
// corruption, not retry the decode.
func (p *Pipeline) Decode(data []byte) ([]byte, error) {
	var err error
	for i := len(p.handlers) - 1; i >= 0; i-- {
		data, err = p.handlers[i].Decode(data)
		if err != nil {
			return nil, errs.WrapCorruption(err)
		}
	}
	return data, nil
}
