package ducknet

import (
	"fmt"
	"sort"
	"time"

	"github.com/DuckSquadDev/ducknet/bitstream"
	"github.com/getlantern/ema"
	"github.com/google/uuid"
	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pkg/errors"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int

const (
	// Connecting connections resend their connection request until the
	// first packet from the peer arrives.
	Connecting ConnectionState = iota
	Connected
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PacketContents lists the reliable messages carried by one sent packet.
type PacketContents struct {
	ID       PacketID
	SentAt   time.Time
	Messages []MessageID
}

// Connection exchanges messages with one remote peer. It is not safe for
// concurrent use; the owner calls Send, Receive and Update from a single
// goroutine.
type Connection struct {
	id     uuid.UUID
	remote Address
	socket PacketSocket
	// ownsSocket is set for connections created by Dial.
	ownsSocket bool
	// shared connections are fed by their Listener instead of reading the
	// socket themselves.
	shared  bool
	onClose func(*Connection)
	opts    *options
	state   ConnectionState

	nextPacketID PacketID
	sequences    [256]uint32
	queue        *sendQueue
	// tracked holds every reliable message from Send until it is acked.
	tracked map[MessageID]*outgoing
	sent    map[PacketID]*PacketContents
	peerAck PacketID

	received   ackWindow
	ackPending bool
	channels   map[Channel]*receiveQueue
	delivered  []Message

	emaRTT      *ema.EMA
	created     time.Time
	lastReceive time.Time
	lastRequest time.Time
	recvBuf     []byte
	stats       Stats
}

// Dial opens a UDP socket on an ephemeral port and returns a connection to
// remote. The connection is Connecting until the peer answers; Update
// resends the connection request meanwhile.
func Dial(remote Address, opts ...Option) (*Connection, error) {
	o := newOptions(opts)
	resolved, err := remote.Resolve()
	if err != nil {
		return nil, err
	}
	socket, err := ListenUDP(Address{}, o.pollTimeout)
	if err != nil {
		return nil, err
	}
	c := newConnection(uuid.New(), resolved, socket, o, Connecting)
	c.ownsSocket = true
	log.Debugf("Dialing %v from %v", resolved, socket.LocalAddr())
	return c, nil
}

// NewConnection returns a Connecting connection to remote over socket. The
// connection reads socket on every Update but leaves closing it to the
// caller.
func NewConnection(remote Address, socket PacketSocket, opts ...Option) *Connection {
	return newConnection(uuid.New(), remote, socket, newOptions(opts), Connecting)
}

func newConnection(id uuid.UUID, remote Address, socket PacketSocket, o *options, state ConnectionState) *Connection {
	now := o.now()
	bufSize := o.mtu
	if bufSize < ConnectionRequestSize {
		bufSize = ConnectionRequestSize
	}
	c := &Connection{
		id:           id,
		remote:       remote,
		socket:       socket,
		opts:         o,
		state:        state,
		nextPacketID: 1,
		queue:        newSendQueue(o.agingPackets),
		tracked:      make(map[MessageID]*outgoing),
		sent:         make(map[PacketID]*PacketContents),
		channels:     make(map[Channel]*receiveQueue),
		emaRTT:       ema.NewDuration(time.Second, 0.1),
		created:      now,
		lastReceive:  now,
		// one spare byte tells oversized datagrams apart
		recvBuf: make([]byte, bufSize+1),
	}
	o.metrics.opened()
	return c
}

// ID returns the connection id sent in the connection request.
func (c *Connection) ID() uuid.UUID          { return c.id }
func (c *Connection) RemoteAddr() Address    { return c.remote }
func (c *Connection) LocalAddr() Address     { return c.socket.LocalAddr() }
func (c *Connection) State() ConnectionState { return c.state }
func (c *Connection) MTU() int               { return c.opts.mtu }

func (c *Connection) retransTimer() time.Duration {
	d := c.emaRTT.GetDuration() * 2
	if d < c.opts.minRetransmitTimeout {
		d = c.opts.minRetransmitTimeout
	}
	return d
}

// Send queues payload as one message. Reliable messages get the next
// sequence number of ch, which is also part of the returned id; unreliable
// messages return NoMessageID. The payload is copied.
func (c *Connection) Send(payload []byte, ch Channel, mode DeliveryMode, pri Priority) (MessageID, error) {
	return c.SendBits(payload, len(payload)*8, ch, mode, pri)
}

// SendBits is like Send for a payload of bitLen bits, MSB-first.
func (c *Connection) SendBits(payload []byte, bitLen int, ch Channel, mode DeliveryMode, pri Priority) (MessageID, error) {
	if c.state == Closed {
		return NoMessageID, ErrConnectionClosed
	}
	if bitLen < 0 || bitLen > len(payload)*8 {
		return NoMessageID, errors.Errorf("bit length %d does not fit a payload of %d bytes", bitLen, len(payload))
	}
	if mode > ReliableOrdered {
		return NoMessageID, errors.Errorf("invalid delivery mode %v", mode)
	}
	if pri > HighPriority {
		return NoMessageID, errors.Errorf("invalid priority %d", pri)
	}
	if recordBits(c.opts.mtu, mode, bitLen) > c.opts.mtu*8-packetHeaderBits {
		return NoMessageID, errors.Wrapf(ErrMessageTooLarge, "%d bits with MTU %d", bitLen, c.opts.mtu)
	}
	m := Message{ID: NoMessageID, BitLen: bitLen, Mode: mode, Channel: ch, Priority: pri}
	if mode.isReliable() {
		if err := c.checkTracked(ch); err != nil {
			return NoMessageID, err
		}
		m.Sequence = c.sequences[ch]
		c.sequences[ch]++
		m.ID = makeMessageID(ch, m.Sequence)
	}
	if n := (bitLen + 7) >> 3; n > 0 {
		m.Payload = pool.Get(n)
		copy(m.Payload, payload[:n])
	}
	o := &outgoing{msg: m}
	c.queue.push(o)
	if mode.isReliable() {
		c.tracked[m.ID] = o
	}
	log.Tracef("Queued %v message %v of %d bits on channel %d", mode, m.ID, bitLen, ch)
	return m.ID, nil
}

// checkTracked fails when another reliable message on ch could overflow the
// peer's reorder window or the pending table.
func (c *Connection) checkTracked(ch Channel) error {
	if len(c.tracked) >= MaxTrackedMessages {
		return errors.Wrapf(ErrTooManyPendingMessages, "%d messages awaiting acknowledgement", len(c.tracked))
	}
	next := c.sequences[ch]
	for id := range c.tracked {
		if id.Channel() == ch && next-id.Sequence() >= MaxTrackedMessages {
			return errors.Wrapf(ErrTooManyPendingMessages, "message %d on channel %d still unacknowledged", id.Sequence(), ch)
		}
	}
	return nil
}

// PackOutgoingPacket builds the next packet from the send queue. The packet
// is marked as sent; the caller is responsible for transmitting it.
func (c *Connection) PackOutgoingPacket() (PacketID, []byte, error) {
	if c.state == Closed {
		return 0, nil, ErrConnectionClosed
	}
	buf := make([]byte, c.opts.mtu)
	id, n, err := c.pack(buf, c.opts.now())
	if err != nil {
		return 0, nil, err
	}
	return id, buf[:n], nil
}

// PacketContents returns the reliable messages carried by packet id, as long
// as the packet is neither acknowledged nor out of the ack window.
func (c *Connection) PacketContents(id PacketID) ([]MessageID, bool) {
	pc, found := c.sent[id]
	if !found {
		return nil, false
	}
	return pc.Messages, true
}

func (c *Connection) pack(buf []byte, now time.Time) (PacketID, int, error) {
	id := c.nextPacketID
	c.nextPacketID++
	if c.nextPacketID == 0 {
		c.nextPacketID = 1
	}
	w := bitstream.NewWriter(buf)
	h := c.received.header(id)
	if err := serializePacketHeader(w, &h); err != nil {
		return 0, 0, errors.Wrap(err, "write header")
	}

	c.queue.beginPacket()
	var contents []MessageID
	for c.queue.Len() > 0 {
		o := c.queue.peek()
		if o.acked {
			// acknowledged while waiting for retransmission
			c.queue.pop()
			o.release()
			continue
		}
		if recordBits(c.opts.mtu, o.msg.Mode, o.msg.BitLen) > w.BitsLeft() {
			break
		}
		c.queue.pop()
		if err := serializeRecord(w, &o.msg, c.opts.mtu); err != nil {
			return 0, 0, errors.Wrapf(err, "write message %v", o.msg.ID)
		}
		c.stats.MessagesSent++
		if o.msg.Mode.isReliable() {
			o.sentAt = now
			o.sends++
			contents = append(contents, o.msg.ID)
		} else {
			o.release()
		}
	}
	c.queue.endPacket()
	if w.BitsLeft() >= modeBits {
		tag := endOfRecords
		if err := serializeMode(w, &tag); err != nil {
			return 0, 0, err
		}
	}
	if len(contents) > 0 {
		c.sent[id] = &PacketContents{ID: id, SentAt: now, Messages: contents}
	}
	c.ackPending = false
	return id, len(w.Finish()), nil
}

// HandlePacket processes one datagram received from the peer. A malformed
// packet is discarded as a whole and reported; the connection stays usable.
func (c *Connection) HandlePacket(data []byte) error {
	if c.state == Closed {
		return ErrConnectionClosed
	}
	if packetType(data) == packetTypeConnectionRequest {
		// the peer is still Connecting, so our last packet was lost
		log.Tracef("Answering repeated connection request from %v", c.remote)
		c.ackPending = true
		return nil
	}
	p, err := parsePacket(data, c.opts.mtu)
	if err != nil {
		c.stats.Malformed++
		c.opts.metrics.malformed()
		return errors.Wrap(err, "parse packet")
	}
	now := c.opts.now()
	c.lastReceive = now
	c.stats.PacketsReceived++
	c.stats.BytesReceived += uint64(len(data))
	c.opts.metrics.packetReceived(len(data))
	if c.state == Connecting {
		log.Debugf("Connected to %v after %v", c.remote, now.Sub(c.created))
		c.state = Connected
	}
	if !c.received.record(p.header.ID) {
		log.Tracef("Packet %d from %v is a duplicate or too old to ack", p.header.ID, c.remote)
	}
	c.ackPending = true
	c.processAcks(p.header, now)

	for _, m := range p.messages {
		c.stats.MessagesReceived++
		if m.Mode == Unreliable {
			c.deliver(m)
			continue
		}
		if err := c.channel(m.Channel).add(m, c.deliver); err != nil {
			log.Tracef("Dropping message %v: %v", m.ID, err)
			c.stats.Duplicates++
			c.opts.metrics.duplicate()
			m.Release()
		}
	}
	return nil
}

func (c *Connection) deliver(m Message) {
	c.delivered = append(c.delivered, m)
}

func (c *Connection) channel(ch Channel) *receiveQueue {
	rq, found := c.channels[ch]
	if !found {
		rq = newReceiveQueue(MaxTrackedMessages)
		c.channels[ch] = rq
	}
	return rq
}

func (c *Connection) processAcks(h packetHeader, now time.Time) {
	if h.Ack == 0 {
		return
	}
	if c.peerAck == 0 || newerPacket(h.Ack, c.peerAck) {
		c.peerAck = h.Ack
	}
	h.forEachAcked(func(id PacketID) {
		pc, found := c.sent[id]
		if !found {
			return
		}
		delete(c.sent, id)
		rtt := now.Sub(pc.SentAt)
		c.emaRTT.UpdateDuration(rtt)
		c.opts.metrics.observeRTT(rtt)
		for _, mid := range pc.Messages {
			o, found := c.tracked[mid]
			if !found {
				// acked through another packet
				continue
			}
			log.Tracef("Got ack for message %v in packet %d", mid, id)
			delete(c.tracked, mid)
			c.stats.Acked++
			c.opts.metrics.acked()
			if o.queued {
				o.acked = true
			} else {
				o.release()
			}
		}
	})
	// packets older than the ack trail can't be acked anymore; their
	// messages are recovered by the retransmission timer
	oldest := c.peerAck - NumAckBits
	for id := range c.sent {
		if newerPacket(oldest, id) {
			delete(c.sent, id)
		}
	}
}

func (c *Connection) retransmitExpired(now time.Time) {
	rto := c.retransTimer()
	var expired []*outgoing
	for _, o := range c.tracked {
		if !o.queued && now.Sub(o.sentAt) >= rto {
			expired = append(expired, o)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].order < expired[j].order
	})
	for _, o := range expired {
		log.Tracef("Resending message %v after %v", o.msg.ID, now.Sub(o.sentAt))
		c.queue.push(o)
		c.stats.Retransmits++
		c.opts.metrics.retransmit()
	}
}

// Receive returns the next delivered message, if any. The caller owns the
// message and should Release it when done with the payload.
func (c *Connection) Receive() (Message, bool) {
	if len(c.delivered) == 0 {
		return Message{}, false
	}
	m := c.delivered[0]
	c.delivered[0] = Message{}
	c.delivered = c.delivered[1:]
	return m, true
}

// Update runs one tick: it reads pending datagrams, checks the timeout,
// queues expired reliable messages again and sends up to the configured
// number of packets.
func (c *Connection) Update() error {
	if c.state == Closed {
		return ErrConnectionClosed
	}
	if !c.shared {
		if err := c.receiveAll(); err != nil {
			return err
		}
	}
	now := c.opts.now()
	if now.Sub(c.lastReceive) >= c.opts.timeout {
		log.Debugf("Connection to %v timed out after %v", c.remote, now.Sub(c.lastReceive))
		c.Close()
		return ErrConnectionTimedOut
	}
	if c.state == Connecting {
		if c.lastRequest.IsZero() || now.Sub(c.lastRequest) >= c.opts.requestInterval {
			c.lastRequest = now
			if err := c.socket.SendTo(c.remote, encodeConnectionRequest(c.id)); err != nil {
				return errors.Wrap(err, "send connection request")
			}
			log.Tracef("Sent connection request %v to %v", c.id, c.remote)
		}
		return nil
	}
	c.retransmitExpired(now)
	for i := 0; i < c.opts.maxPacketsPerTick; i++ {
		if c.queue.Len() == 0 && !c.ackPending {
			break
		}
		if err := c.sendPacket(now); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) receiveAll() error {
	for {
		n, from, err := c.socket.ReceiveFrom(c.recvBuf)
		if errors.Is(err, ErrWouldBlock) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "receive")
		}
		if from != c.remote {
			log.Tracef("Dropping datagram from unknown peer %v", from)
			continue
		}
		if err := c.HandlePacket(c.recvBuf[:n]); err != nil {
			log.Errorf("Dropping packet from %v: %v", from, err)
		}
	}
}

func (c *Connection) sendPacket(now time.Time) error {
	buf := pool.Get(c.opts.mtu)
	defer pool.Put(buf)
	id, n, err := c.pack(buf, now)
	if err != nil {
		return err
	}
	if err := c.socket.SendTo(c.remote, buf[:n]); err != nil {
		return errors.Wrapf(err, "send packet %d", id)
	}
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(n)
	c.opts.metrics.packetSent(n)
	log.Tracef("Done writing packet %d of %d bytes to %v", id, n, c.remote)
	return nil
}

// Stats returns a snapshot of the connection's counters.
func (c *Connection) Stats() Stats {
	s := c.stats
	s.Queued = c.queue.Len()
	s.Pending = len(c.tracked)
	s.RTT = c.emaRTT.GetDuration()
	return s
}

// Close discards all queued, pending and undelivered messages. It closes the
// socket only if the connection was created by Dial.
func (c *Connection) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	for _, o := range c.tracked {
		if !o.queued {
			o.release()
		}
	}
	c.tracked = nil
	c.sent = nil
	c.queue.drain()
	for _, rq := range c.channels {
		rq.close()
	}
	for i := range c.delivered {
		c.delivered[i].Release()
	}
	c.delivered = nil
	c.opts.metrics.closed()
	if c.onClose != nil {
		c.onClose(c)
	}
	log.Debugf("Closed connection to %v: %v", c.remote, c.stats)
	if c.ownsSocket {
		return c.socket.Close()
	}
	return nil
}
