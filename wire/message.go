// Package wire defines the messages this module produces: trampoline
// routing advertisements and swap-out requests. The framing mirrors the
// lnwire message pattern (a 2-byte big-endian type prefix ahead of a
// length-limited payload) but is its own closed set of message types,
// since TLV wire codecs for the rest of the protocol are out of this
// module's scope.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message's payload may occupy.
const MaxMessagePayload = 65535

// MessageType is the 2-byte big-endian type prefix identifying a message.
type MessageType uint16

const (
	// MsgTrampolineStatusInit announces the first non-undesired
	// trampoline advertisement to a peer.
	MsgTrampolineStatusInit MessageType = 60001

	// MsgTrampolineStatusUpdate announces a change to a previously
	// advertised trampoline status.
	MsgTrampolineStatusUpdate MessageType = 60002

	// MsgTrampolineUndesired announces that trampoline routing is
	// currently unavailable or disabled for this peer.
	MsgTrampolineUndesired MessageType = 60003

	// MsgSwapOutRequest solicits swap-out feerate offers from a hosted
	// channel counterparty.
	MsgSwapOutRequest MessageType = 60101

	// MsgSwapOutResponse carries a provider's swap-out feerate offer.
	MsgSwapOutResponse MessageType = 60102
)

// Message is a wire protocol message produced by this module.
type Message interface {
	Encode(w io.Writer) error
	Decode(r io.Reader) error
	MsgType() MessageType
	MaxPayloadLength() uint32
}

// UnknownMessage is returned by ReadMessage when the type prefix does not
// match any message defined by this package.
type UnknownMessage struct {
	messageType MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgTrampolineStatusInit:
		return &TrampolineStatusInit{}, nil
	case MsgTrampolineStatusUpdate:
		return &TrampolineStatusUpdate{}, nil
	case MsgTrampolineUndesired:
		return &TrampolineUndesired{}, nil
	case MsgSwapOutRequest:
		return &SwapOutRequest{}, nil
	case MsgSwapOutResponse:
		return &SwapOutResponse{}, nil
	default:
		return nil, &UnknownMessage{messageType: msgType}
	}
}

// WriteMessage serializes msg with its type prefix onto w.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		return 0, err
	}
	payload := buf.Bytes()

	if len(payload) > MaxMessagePayload {
		return 0, fmt.Errorf("message payload too large: %d bytes",
			len(payload))
	}
	if uint32(len(payload)) > msg.MaxPayloadLength() {
		return 0, fmt.Errorf("message payload too large for type "+
			"%d: %d bytes", msg.MsgType(), len(payload))
	}

	total := 0
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	n, err := w.Write(mType[:])
	total += n
	if err != nil {
		return total, err
	}

	n, err = w.Write(payload)
	total += n
	return total, err
}

// ReadMessage reads, type-dispatches, and decodes the next message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}
	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}
