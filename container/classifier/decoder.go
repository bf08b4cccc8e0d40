package classifier

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/usnistgov/patchpanel/core/macaddr"
)

// Decoder extracts classification keys from Ethernet frames.
// Each polling thread should own its Decoder.
type Decoder struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 2)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.dot1q)
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode returns the VLAN and destination address of a frame.
// ok is false if the frame is not a valid Ethernet frame.
func (d *Decoder) Decode(frame []byte) (vlan VlanID, dst macaddr.Key, ok bool) {
	if e := d.parser.DecodeLayers(frame, &d.decoded); e != nil || len(d.decoded) == 0 {
		return Untagged, 0, false
	}

	vlan = Untagged
	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeEthernet:
			dst = macaddr.KeyFromBytes(d.eth.DstMAC)
		case layers.LayerTypeDot1Q:
			vlan = VlanID(d.dot1q.VLANIdentifier)
			if !vlan.IsTagged() {
				vlan = Untagged
			}
			return vlan, dst, true
		}
	}
	return vlan, dst, true
}

// ClassifyFrame decodes a frame and classifies it against s.
// An undecodable frame is dropped.
func (d *Decoder) ClassifyFrame(s *Snapshot, frame []byte) Result {
	vlan, dst, ok := d.Decode(frame)
	if !ok {
		return Result{Verdict: Drop}
	}
	return s.Classify(vlan, dst)
}
