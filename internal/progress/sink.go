package progress

import "context"

// Sink receives batches of crawl events from the Hub. Consume is called from
// the Hub's single delivery goroutine with a batch the sink may keep.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	// Close is called once, after the final batch.
	Close(ctx context.Context) error
}

// Emitter is what the crawl engine reports to. A nil *Hub is a valid Emitter
// that drops everything.
type Emitter interface {
	Emit(evt Event)
}
