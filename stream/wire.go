package stream

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/NebulousLabs/errors"
	"github.com/pSapien/udp/oracle"
)

// pendingItem is a (seq, item) pair held in the pending queue from enqueue
// until it is acknowledged or the stream ends.
type pendingItem struct {
	seq uint16
	msg oracle.Message
}

// decodedItem is one item this side received in a single inbound frame, in
// the order it was read.
type decodedItem struct {
	seq uint16
	msg oracle.Message
}

// serializeFrame writes one STREAM frame body: the cumulative ack, as many
// pending items as fit within maxLen bytes, and a terminator. The terminator
// is the close sentinel only when closing is set and every item in pending
// was written in this frame; otherwise it is 0. It also returns whether every
// item in pending was written.
//
// The mark/revert discipline is implemented by recording buf.Len() before
// encoding each item and truncating back to that mark if the item pushed
// the frame over maxLen.
func serializeFrame(o oracle.Oracle, ack uint16, pending []pendingItem, closing bool, maxLen int) ([]byte, bool, error) {
	var buf bytes.Buffer
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], ack)
	buf.Write(hdr[:])

	wroteAll := true
	for _, item := range pending {
		mark := buf.Len()

		binary.BigEndian.PutUint16(hdr[:], item.seq)
		buf.Write(hdr[:])
		if err := o.Encode(&buf, item.msg); err != nil {
			// A mid-buffer serialization failure is recoverable: the
			// offending item stays pending and the frame is truncated
			// gracefully.
			truncate(&buf, mark)
			wroteAll = false
			break
		}

		if buf.Len() > maxLen {
			truncate(&buf, mark)
			wroteAll = false
			break
		}
	}

	// The close sentinel is the true end-of-stream marker: it may never be
	// written ahead of data that didn't fit.
	if wroteAll && closing {
		binary.BigEndian.PutUint16(hdr[:], seqClose)
	} else {
		binary.BigEndian.PutUint16(hdr[:], seqTerminator)
	}
	buf.Write(hdr[:])

	return buf.Bytes(), wroteAll, nil
}

// truncate resets buf back to the first mark bytes via Buffer.Truncate,
// discarding anything written after it.
func truncate(buf *bytes.Buffer, mark int) {
	buf.Truncate(mark)
}

// parsedFrame is the result of parsing one inbound STREAM frame body.
type parsedFrame struct {
	ack         uint16
	remoteClose bool // ack == 0xFFFF: peer has torn down its side
	items       []decodedItem
	localClose  bool // sender's item list ended with the close sentinel
}

// parseFrame reads one STREAM frame body from r: the ack, then a sequence
// of (seq, item) pairs terminated by 0 or 0xFFFF.
func parseFrame(o oracle.Oracle, r io.Reader) (parsedFrame, error) {
	var f parsedFrame
	var hdr [2]byte

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return f, errors.Extend(err, errors.New("stream: could not read frame ack"))
	}
	f.ack = binary.BigEndian.Uint16(hdr[:])
	if f.ack == seqClose {
		f.remoteClose = true
		return f, nil
	}

	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return f, errors.Extend(err, errors.New("stream: could not read item seq"))
		}
		seq := binary.BigEndian.Uint16(hdr[:])
		if seq == seqTerminator {
			return f, nil
		}
		if seq == seqClose {
			f.localClose = true
			return f, nil
		}

		_, msg, err := o.Decode(r)
		if err != nil {
			return f, errors.Extend(err, errors.New("stream: could not decode item payload"))
		}
		f.items = append(f.items, decodedItem{seq: seq, msg: msg})
	}
}
