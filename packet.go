package ducknet

import (
	"github.com/DuckSquadDev/ducknet/bitstream"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	packetTypeConnectionRequest uint8 = 1
	packetTypeData              uint8 = 2

	packetHeaderBits = 8 + 32 + 32 + 32
)

type packetHeader struct {
	ID      PacketID
	Ack     PacketID
	AckBits AckTrail
}

func serializePacketHeader(s bitstream.Stream, h *packetHeader) error {
	typ := packetTypeData
	if err := bitstream.SerializeUint8(s, &typ); err != nil {
		return err
	}
	if typ != packetTypeData {
		return errors.Wrapf(ErrMalformedPacket, "packet type %d", typ)
	}
	id, ack, bits := uint32(h.ID), uint32(h.Ack), uint32(h.AckBits)
	if err := bitstream.SerializeUint32(s, &id); err != nil {
		return err
	}
	if err := bitstream.SerializeUint32(s, &ack); err != nil {
		return err
	}
	if err := bitstream.SerializeUint32(s, &bits); err != nil {
		return err
	}
	h.ID, h.Ack, h.AckBits = PacketID(id), PacketID(ack), AckTrail(bits)
	return nil
}

type connectionRequest struct {
	ConnectionID uuid.UUID
}

func serializeConnectionRequest(s bitstream.Stream, req *connectionRequest) error {
	typ := packetTypeConnectionRequest
	if err := bitstream.SerializeUint8(s, &typ); err != nil {
		return err
	}
	if typ != packetTypeConnectionRequest {
		return errors.Wrapf(ErrMalformedPacket, "packet type %d", typ)
	}
	proto := protocolID
	if err := bitstream.SerializeUint32(s, &proto); err != nil {
		return err
	}
	if proto != protocolID {
		return ErrUnexpectedProtocol
	}
	return s.SerializeBlock(req.ConnectionID[:], 128)
}

func encodeConnectionRequest(id uuid.UUID) []byte {
	buf := make([]byte, ConnectionRequestSize)
	w := bitstream.NewWriter(buf)
	req := connectionRequest{ConnectionID: id}
	// fits by construction
	_ = serializeConnectionRequest(w, &req)
	w.Finish()
	return buf
}

func decodeConnectionRequest(b []byte) (connectionRequest, error) {
	var req connectionRequest
	if len(b) != ConnectionRequestSize {
		return req, errors.Wrapf(ErrMalformedPacket, "connection request of %d bytes", len(b))
	}
	err := serializeConnectionRequest(bitstream.NewReader(b), &req)
	return req, err
}

func packetType(b []byte) uint8 {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

type incomingPacket struct {
	header   packetHeader
	messages []Message
}

func (p *incomingPacket) release() {
	for i := range p.messages {
		p.messages[i].Release()
	}
	p.messages = nil
}

// parsePacket decodes a whole data packet. On error every payload taken so
// far is released and nothing of the packet should be applied.
func parsePacket(data []byte, mtu int) (incomingPacket, error) {
	var p incomingPacket
	if len(data) > mtu {
		return p, errors.Wrapf(ErrMalformedPacket, "packet of %d bytes exceeds MTU %d", len(data), mtu)
	}
	r := bitstream.NewReader(data)
	if err := serializePacketHeader(r, &p.header); err != nil {
		return p, errors.Wrap(err, "header")
	}
	for r.BitsLeft() >= modeBits {
		var m Message
		if err := serializeRecord(r, &m, mtu); err != nil {
			m.Release()
			p.release()
			return p, errors.Wrapf(err, "record %d", len(p.messages))
		}
		if m.Mode == endOfRecords {
			break
		}
		p.messages = append(p.messages, m)
	}
	return p, nil
}
