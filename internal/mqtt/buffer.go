package mqtt

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 100

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// A retained message replaces any buffered retained message for the same
// topic, since the broker would only keep the last one.
// Not safe for concurrent use; caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// push adds msg and reports whether this push started dropping messages.
func (r *ringBuffer) push(msg bufferedMsg) (startedDropping bool) {
	if msg.retained {
		start := r.start()
		for i := 0; i < r.count; i++ {
			idx := (start + i) % r.capacity
			if r.buf[idx].retained && r.buf[idx].topic == msg.topic {
				r.buf[idx] = msg
				return false
			}
		}
	}

	if r.count == r.capacity {
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		r.dropped++
		return r.dropped == 1
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
	return false
}

// drainAll returns buffered messages oldest first and the number dropped.
func (r *ringBuffer) drainAll() ([]bufferedMsg, int) {
	dropped := r.dropped
	if r.count == 0 {
		r.dropped = 0
		return nil, dropped
	}

	result := make([]bufferedMsg, r.count)
	start := r.start()
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return result, dropped
}

// start is the index of the oldest item.
func (r *ringBuffer) start() int {
	return (r.head - r.count + r.capacity) % r.capacity
}

func (r *ringBuffer) len() int {
	return r.count
}
