package wire

import (
	"encoding/binary"
	"io"

	"github.com/lightningnetwork/trampoline-electrum/comms"
)

// TrampolineOn is the template advertisement of a node's willingness and
// capacity to act as a trampoline router. MaxMsat is mutated per peer by
// the broadcaster on every recomputation; the rest of the fields are the
// operator-configured routing parameters.
type TrampolineOn struct {
	MinMsat                   comms.MilliSatoshi
	MaxMsat                   comms.MilliSatoshi
	FeeBaseMsat               uint32
	FeeProportionalMillionths uint32
	CltvExpiryDelta           uint16
}

// Copy returns a value copy of the template, ready to have MaxMsat
// overwritten for a specific peer without mutating the shared template.
func (t TrampolineOn) Copy() TrampolineOn {
	return t
}

func writeMsat(w io.Writer, v comms.MilliSatoshi) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readMsat(r io.Reader) (comms.MilliSatoshi, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return comms.MilliSatoshi(binary.BigEndian.Uint64(b[:])), nil
}

func (t *TrampolineOn) encode(w io.Writer) error {
	if err := writeMsat(w, t.MinMsat); err != nil {
		return err
	}
	if err := writeMsat(w, t.MaxMsat); err != nil {
		return err
	}
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], t.FeeBaseMsat)
	if _, err := w.Write(u32[:]); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(u32[:], t.FeeProportionalMillionths)
	if _, err := w.Write(u32[:]); err != nil {
		return err
	}
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], t.CltvExpiryDelta)
	_, err := w.Write(u16[:])
	return err
}

func (t *TrampolineOn) decode(r io.Reader) error {
	var err error
	if t.MinMsat, err = readMsat(r); err != nil {
		return err
	}
	if t.MaxMsat, err = readMsat(r); err != nil {
		return err
	}
	var u32 [4]byte
	if _, err = io.ReadFull(r, u32[:]); err != nil {
		return err
	}
	t.FeeBaseMsat = binary.BigEndian.Uint32(u32[:])
	if _, err = io.ReadFull(r, u32[:]); err != nil {
		return err
	}
	t.FeeProportionalMillionths = binary.BigEndian.Uint32(u32[:])
	var u16 [2]byte
	if _, err = io.ReadFull(r, u16[:]); err != nil {
		return err
	}
	t.CltvExpiryDelta = binary.BigEndian.Uint16(u16[:])
	return nil
}

// TrampolineStatusInit is the first non-undesired advertisement sent to a
// peer. Updates is reserved for a future per-channel delta list; this
// broadcaster always sends it empty, the whole status is fresh.
type TrampolineStatusInit struct {
	Updates []string
	Status  TrampolineOn
}

func writeStringSlice(w io.Writer, ss []string) error {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(ss)))
	if _, err := w.Write(lb[:]); err != nil {
		return err
	}
	for _, s := range ss {
		binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
		if _, err := w.Write(lb[:]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r io.Reader) ([]string, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lb[:])
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return nil, err
		}
		buf := make([]byte, binary.BigEndian.Uint32(lb[:]))
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out = append(out, string(buf))
	}
	return out, nil
}

func (m *TrampolineStatusInit) Encode(w io.Writer) error {
	if err := writeStringSlice(w, m.Updates); err != nil {
		return err
	}
	return m.Status.encode(w)
}

func (m *TrampolineStatusInit) Decode(r io.Reader) error {
	var err error
	if m.Updates, err = readStringSlice(r); err != nil {
		return err
	}
	return m.Status.decode(r)
}

func (m *TrampolineStatusInit) MsgType() MessageType { return MsgTrampolineStatusInit }

func (m *TrampolineStatusInit) MaxPayloadLength() uint32 { return MaxMessagePayload }

// TrampolineStatusUpdate announces a change to a previously advertised
// status. Removed/Changed name peer-local channel ids affected by the
// recomputation; this broadcaster always sends both empty and Status
// populated, since it recomputes the whole aggregate rather than diffing
// per channel.
type TrampolineStatusUpdate struct {
	Removed []string
	Changed []string
	Status  *TrampolineOn
}

func (m *TrampolineStatusUpdate) Encode(w io.Writer) error {
	if err := writeStringSlice(w, m.Removed); err != nil {
		return err
	}
	if err := writeStringSlice(w, m.Changed); err != nil {
		return err
	}
	present := byte(0)
	if m.Status != nil {
		present = 1
	}
	if _, err := w.Write([]byte{present}); err != nil {
		return err
	}
	if m.Status != nil {
		return m.Status.encode(w)
	}
	return nil
}

func (m *TrampolineStatusUpdate) Decode(r io.Reader) error {
	var err error
	if m.Removed, err = readStringSlice(r); err != nil {
		return err
	}
	if m.Changed, err = readStringSlice(r); err != nil {
		return err
	}
	var present [1]byte
	if _, err = io.ReadFull(r, present[:]); err != nil {
		return err
	}
	if present[0] == 1 {
		m.Status = &TrampolineOn{}
		return m.Status.decode(r)
	}
	m.Status = nil
	return nil
}

func (m *TrampolineStatusUpdate) MsgType() MessageType { return MsgTrampolineStatusUpdate }

func (m *TrampolineStatusUpdate) MaxPayloadLength() uint32 { return MaxMessagePayload }

// TrampolineUndesired announces that trampoline routing is currently
// unavailable for this peer. It carries no payload.
type TrampolineUndesired struct{}

func (m *TrampolineUndesired) Encode(w io.Writer) error { return nil }
func (m *TrampolineUndesired) Decode(r io.Reader) error { return nil }
func (m *TrampolineUndesired) MsgType() MessageType     { return MsgTrampolineUndesired }
func (m *TrampolineUndesired) MaxPayloadLength() uint32 { return 0 }
