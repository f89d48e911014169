package wslink

// reassembler accumulates raw transport bytes and carves complete frames out
// of them. A TCP read can deliver half a frame or several frames at once;
// the buffer only ever advances by exactly the bytes a verified frame
// consumed, so corruption cannot bleed into the next frame.
type reassembler struct {
	buf []byte
}

func (r *reassembler) push(p []byte) {
	r.buf = append(r.buf, p...)
}

// next carves the next complete frame off the buffer head. ok is false when
// the buffer does not yet hold a complete frame; nothing is consumed then.
func (r *reassembler) next() (f frame, ok bool, err error) {
	f, n, err := decodeFrame(r.buf)
	if err != nil || n == 0 {
		return frame{}, false, err
	}
	r.buf = r.buf[n:]
	return f, true, nil
}

// buffered reports how many unparsed bytes are pending.
func (r *reassembler) buffered() int {
	return len(r.buf)
}
