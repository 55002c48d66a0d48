package ducknet

// newerPacket reports whether a was sent after b, tolerating wraparound.
func newerPacket(a, b PacketID) bool {
	return int32(a-b) > 0
}

// ackWindow remembers which of the most recent packets from the peer have
// arrived. newest is echoed as the ack and trail bit i stands for packet
// newest-1-i.
type ackWindow struct {
	newest PacketID
	trail  AckTrail
}

// record marks id as received. It returns false if id was already recorded
// or is too old to be represented.
func (w *ackWindow) record(id PacketID) bool {
	if w.newest == 0 {
		w.newest = id
		return true
	}
	if id == w.newest {
		return false
	}
	if newerPacket(id, w.newest) {
		d := uint32(id - w.newest)
		if d > NumAckBits {
			w.trail = 0
		} else {
			// shifting by NumAckBits leaves zero
			w.trail = w.trail<<d | 1<<(d-1)
		}
		w.newest = id
		return true
	}
	d := uint32(w.newest - id)
	if d > NumAckBits {
		return false
	}
	bit := AckTrail(1) << (d - 1)
	if w.trail&bit != 0 {
		return false
	}
	w.trail |= bit
	return true
}

func (w *ackWindow) header(id PacketID) packetHeader {
	return packetHeader{ID: id, Ack: w.newest, AckBits: w.trail}
}

// forEachAcked calls fn for every packet id acknowledged by h.
func (h packetHeader) forEachAcked(fn func(PacketID)) {
	if h.Ack == 0 {
		return
	}
	fn(h.Ack)
	for i := 0; i < NumAckBits; i++ {
		if h.AckBits&(1<<uint(i)) == 0 {
			continue
		}
		id := h.Ack - 1 - PacketID(i)
		if id == 0 {
			break
		}
		fn(id)
	}
}
