package consensuspipeline

// ShutdownBroadcaster fans a single shutdown signal out to exactly the
// subscribers registered before the first broadcast, a fixed count
// known up front (three, for the message receiver, ordering engine and
// output producer). A call to Subscribe beyond that count is a bug in
// the caller, not a runtime condition to handle gracefully.
type ShutdownBroadcaster struct {
	channels []chan struct{}
	n        int
}

func NewShutdownBroadcaster(n int) *ShutdownBroadcaster {
	b := &ShutdownBroadcaster{n: n}
	b.channels = make([]chan struct{}, 0, n)
	return b
}

// Subscribe returns the next pre-allocated shutdown channel. Panics if
// called more than n times.
func (b *ShutdownBroadcaster) Subscribe() <-chan struct{} {
	if len(b.channels) >= b.n {
		panic("consensuspipeline: ShutdownBroadcaster subscribed beyond its fixed capacity")
	}
	ch := make(chan struct{})
	b.channels = append(b.channels, ch)
	return ch
}

// Shutdown closes every subscribed channel, waking all subscribers.
// Safe to call exactly once.
func (b *ShutdownBroadcaster) Shutdown() {
	for _, ch := range b.channels {
		close(ch)
	}
}
