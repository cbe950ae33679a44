// Package cmdchan implements C9: the fixed-layout command/status channel
// between the task domain and the servo domain, with serial-number echo,
// torn-read protection via head/tail counters, and force-publish
// semantics for estop/abort. Grounded on the teacher's command/response
// dictionary (core/command.go's CommandRegistry/Dispatch) for the
// type+payload message shape, generalized from a byte-stream MCU protocol
// to an in-process fixed-struct slot pair per §4.9, checksummed with
// snksoft/crc in place of the teacher's hand-rolled protocol.CRC16, and
// retried with cenkalti/backoff for the "wait up to ~5s for the previous
// echo" timeout in §5.
package cmdchan

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/snksoft/crc"
)

// PayloadSize bounds the fixed-layout message payload (§6's largest
// command variants: set-homing-params and set-circle carry the most
// fields).
const PayloadSize = 64

// MsgType enumerates the task->motion and task->io command variants of
// §6, plus the status-slot report type.
type MsgType uint16

const (
	MsgAbort MsgType = iota
	MsgEnable
	MsgDisable
	MsgModeFree
	MsgModeCoord
	MsgModeTeleop
	MsgSetNumAxes
	MsgSetWorldHome
	MsgSetHomingParams
	MsgJogCont
	MsgJogIncr
	MsgJogAbs
	MsgSetLine
	MsgSetCircle
	MsgSetRigidTap
	MsgSetProbe
	MsgPause
	MsgResume
	MsgStep
	MsgFeedScale
	MsgSpindleScale
	MsgFeedHoldEnable
	MsgFeedScaleEnable
	MsgSpindleScaleEnable
	MsgAdaptiveFeedEnable
	MsgSetAOut
	MsgSetDOut
	MsgSetSpindle
	MsgSpindleOff
	MsgSpindleBrakeEngage
	MsgSpindleBrakeRelease
	MsgHome
	MsgToolPrepare
	MsgToolLoad
	MsgToolUnload
	MsgToolLoadTable
	MsgToolSetOffset
	MsgCoolantMistOn
	MsgCoolantMistOff
	MsgCoolantFloodOn
	MsgCoolantFloodOff
	MsgLubeOn
	MsgLubeOff
	MsgAuxEstopOn
	MsgAuxEstopOff
	MsgAuxEstopReset
	MsgStatusReport
)

// Message is the fixed-layout frame exchanged in either slot (§4.9).
type Message struct {
	Type    MsgType
	Serial  int32
	Size    uint16
	Payload [PayloadSize]byte
	Checksum uint16
}

func checksum(payload []byte) uint16 {
	return uint16(crc.CalculateCRC(crc.CCITT, payload))
}

// slot is one fixed shared region with torn-read protection: the writer
// bumps head before filling the message and tail after, the reader
// compares head to tail and re-reads if they differ (§4.9).
type slot struct {
	msg  Message
	head atomic.Uint64
	tail atomic.Uint64
}

func (s *slot) write(msg Message) {
	msg.Checksum = checksum(msg.Payload[:msg.Size])
	s.head.Add(1)
	s.msg = msg
	s.tail.Add(1)
}

// read re-reads until head == tail (torn-read protection), returning the
// stable message and its tail counter at the time of the stable read.
func (s *slot) read() (Message, uint64) {
	for {
		tail := s.tail.Load()
		msg := s.msg
		head := s.head.Load()
		if head == tail {
			return msg, tail
		}
	}
}

// Channel is one direction's command slot plus its paired status slot
// for the echo. Task is the producer of command, consumer of status;
// servo is the reverse.
type Channel struct {
	command slot
	status  slot

	lastSerial   atomic.Int32
	lastEchoed   atomic.Int32
	lastReadTail atomic.Uint64
}

// New returns an empty channel with both slots at serial 0.
func New() *Channel {
	return &Channel{}
}

// ErrPublishTimedOut is returned by Publish (never by ForcePublish) when
// the previous command's echo does not arrive within the backoff budget;
// the caller should treat this as "force-published with an operator
// warning" per §5's timeout policy, which Publish itself performs before
// returning this error so the command is never silently dropped.
var ErrPublishTimedOut = errors.New("cmdchan: publish timed out waiting for echo, force-published")

// Publish writes msg to the command slot, waiting up to ~5s for the
// previous serial to be echoed in the status slot before overwriting
// (§4.9, §5). If the wait times out, it force-publishes anyway and
// returns ErrPublishTimedOut so the caller can log an operator warning.
func (c *Channel) Publish(msgType MsgType, payload []byte) error {
	serial := c.lastSerial.Add(1)
	msg := c.newMessage(msgType, serial, payload)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	b.InitialInterval = 200 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond

	waitForEcho := func() error {
		if c.lastEchoed.Load() >= serial-1 {
			return nil
		}
		return errors.New("echo not yet caught up")
	}

	timedOut := backoff.Retry(waitForEcho, b) != nil
	c.command.write(msg)
	if timedOut {
		return ErrPublishTimedOut
	}
	return nil
}

// ForcePublish writes msg immediately, ignoring the outstanding-command
// echo check, for estop/abort (§4.9).
func (c *Channel) ForcePublish(msgType MsgType, payload []byte) {
	serial := c.lastSerial.Add(1)
	msg := c.newMessage(msgType, serial, payload)
	c.command.write(msg)
}

func (c *Channel) newMessage(msgType MsgType, serial int32, payload []byte) Message {
	var msg Message
	msg.Type = msgType
	msg.Serial = serial
	n := copy(msg.Payload[:], payload)
	msg.Size = uint16(n)
	return msg
}

// Receive is the consumer-side (servo domain) read of the command slot.
// It echoes the serial into the status slot's shadow counter (the actual
// status-slot write happens via PublishStatus at the end of the servo
// tick, per §4.8 step 7) and returns ok=false if no new message has
// arrived since the last Receive.
func (c *Channel) Receive() (Message, bool) {
	msg, tail := c.command.read()
	if tail == c.lastReadTail.Load() {
		return Message{}, false
	}
	c.lastReadTail.Store(tail)
	c.lastEchoed.Store(msg.Serial)
	return msg, true
}

// PublishStatus is the servo domain's end-of-tick status publish (§4.8
// step 7), echoing the last processed command serial.
func (c *Channel) PublishStatus(payload []byte) {
	msg := c.newMessage(MsgStatusReport, c.lastEchoed.Load(), payload)
	c.status.write(msg)
}

// ReadStatus is the task domain's read of the status slot.
func (c *Channel) ReadStatus() Message {
	msg, _ := c.status.read()
	return msg
}
