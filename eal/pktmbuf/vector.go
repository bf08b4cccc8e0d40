package pktmbuf

// Vector is a vector of packet buffers.
type Vector []*Packet

// Close releases the packets.
// nil elements are skipped.
func (vec Vector) Close() error {
	for _, pkt := range vec {
		if pkt != nil {
			pkt.Close()
		}
	}
	return nil
}

// Clear sets every element to nil without releasing.
// Use after ownership has been transferred.
func (vec Vector) Clear() {
	for i := range vec {
		vec[i] = nil
	}
}

// Len returns total octets of all packets.
func (vec Vector) Len() (n int) {
	for _, pkt := range vec {
		n += pkt.Len()
	}
	return n
}
