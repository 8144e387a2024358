// Package feed implements the price-feed session: a FIX-flavored tag=value
// wire protocol over TCP, the logon/subscribe state machine, and the
// fallback synthetic quote source.
package feed

import (
	"bytes"
	"fmt"
	"strconv"

	"fxengine/pkg/fixed"
)

// SOH is the control-byte field delimiter.
const SOH byte = 0x01

// BeginString identifies the protocol version in tag 8.
const BeginString = "FX.4.4"

// Session-level tags.
const (
	TagBeginString   = 8
	TagBodyLength    = 9
	TagCheckSum      = 10
	TagMsgSeqNum     = 34
	TagMsgType       = 35
	TagSenderCompID  = 49
	TagSendingTime   = 52
	TagSymbol        = 55
	TagTargetCompID  = 56
	TagText          = 58
	TagEncryptMethod = 98
	TagHeartBtInt    = 108
	TagTestReqID     = 112
	TagUsername      = 553
	TagPassword      = 554

	TagMDReqID          = 262
	TagSubscriptionType = 263
	TagMarketDepth      = 264
	TagNoMDEntryTypes   = 267
	TagNoMDEntries      = 268
	TagMDEntryType      = 269
	TagMDEntryPx        = 270
)

// Message types (tag 35).
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeReject        = "3"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
	MsgTypeMDRequest     = "V"
	MsgTypeMDSnapshot    = "W"
	MsgTypeMDIncremental = "X"
)

// Market-data entry types (tag 269).
const (
	EntryTypeBid = "0"
	EntryTypeAsk = "1"
)

// Field is one tag=value pair.
type Field struct {
	Tag   int
	Value string
}

// Message is a parsed frame. Fields keep wire order, which matters for the
// repeating market-data groups.
type Message struct {
	Type   string
	Fields []Field
}

// Get returns the first value for a tag.
func (m *Message) Get(tag int) (string, bool) {
	for _, f := range m.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// Checksum is the sum of all byte values mod 256, rendered as 3 zero-padded
// decimal digits on the wire.
func Checksum(data []byte) int {
	sum := 0
	for _, b := range data {
		sum += int(b)
	}
	return sum % 256
}

// Encode frames a message: 8=<ver><d>9=<len><d><body><d>10=<chk><d>, where
// the body starts at 35= and the length counts every body byte including its
// trailing delimiter.
func Encode(msgType string, fields ...Field) []byte {
	var body bytes.Buffer
	writeField(&body, TagMsgType, msgType)
	for _, f := range fields {
		writeField(&body, f.Tag, f.Value)
	}

	var frame bytes.Buffer
	writeField(&frame, TagBeginString, BeginString)
	writeField(&frame, TagBodyLength, strconv.Itoa(body.Len()))
	frame.Write(body.Bytes())
	writeField(&frame, TagCheckSum, fmt.Sprintf("%03d", Checksum(frame.Bytes())))
	return frame.Bytes()
}

func writeField(buf *bytes.Buffer, tag int, value string) {
	buf.WriteString(strconv.Itoa(tag))
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte(SOH)
}

// Parse validates a complete frame and returns its fields. The checksum is
// verified against every byte preceding the 10= field.
func Parse(frame []byte) (*Message, error) {
	chkIdx := bytes.LastIndex(frame, []byte("10="))
	if chkIdx < 0 {
		return nil, fmt.Errorf("frame has no checksum field")
	}
	wantChk, err := strconv.Atoi(string(bytes.TrimSuffix(frame[chkIdx+3:], []byte{SOH})))
	if err != nil {
		return nil, fmt.Errorf("malformed checksum: %w", err)
	}
	if got := Checksum(frame[:chkIdx]); got != wantChk {
		return nil, fmt.Errorf("checksum mismatch: got %03d want %03d", got, wantChk)
	}

	msg := &Message{}
	for _, raw := range bytes.Split(frame[:chkIdx], []byte{SOH}) {
		if len(raw) == 0 {
			continue
		}
		eq := bytes.IndexByte(raw, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed field %q", raw)
		}
		tag, err := strconv.Atoi(string(raw[:eq]))
		if err != nil {
			return nil, fmt.Errorf("malformed tag %q: %w", raw[:eq], err)
		}
		f := Field{Tag: tag, Value: string(raw[eq+1:])}
		if tag == TagMsgType {
			msg.Type = f.Value
		}
		msg.Fields = append(msg.Fields, f)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("frame has no MsgType")
	}
	return msg, nil
}

// ScanFrames is a bufio.SplitFunc that cuts one protocol frame off the
// stream: everything up to and including the delimiter after the 10= field.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	chk := bytes.Index(data, []byte{SOH, '1', '0', '='})
	if chk >= 0 {
		if end := bytes.IndexByte(data[chk+4:], SOH); end >= 0 {
			frameEnd := chk + 4 + end + 1
			return frameEnd, data[:frameEnd], nil
		}
	}
	if atEOF && len(data) > 0 {
		return 0, nil, fmt.Errorf("truncated frame: %d trailing bytes", len(data))
	}
	return 0, nil, nil
}

// ParseMarketData walks the repeating 269/270 groups of a snapshot or
// incremental message, tracking the most recent entry type and capturing the
// paired price. Either side may be absent from an incremental.
func ParseMarketData(msg *Message) (bid, ask fixed.Price, hasBid, hasAsk bool, err error) {
	entryType := ""
	for _, f := range msg.Fields {
		switch f.Tag {
		case TagMDEntryType:
			entryType = f.Value
		case TagMDEntryPx:
			px, perr := fixed.PriceFromString(f.Value)
			if perr != nil {
				return 0, 0, false, false, fmt.Errorf("bad entry price %q: %w", f.Value, perr)
			}
			switch entryType {
			case EntryTypeBid:
				bid, hasBid = px, true
			case EntryTypeAsk:
				ask, hasAsk = px, true
			}
		}
	}
	return bid, ask, hasBid, hasAsk, nil
}
