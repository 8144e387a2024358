package feed

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"fxengine/internal/infra"
	"fxengine/pkg/fixed"
)

type fakeVenue struct {
	t  *testing.T
	ln net.Listener
}

func newFakeVenue(t *testing.T) *fakeVenue {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return &fakeVenue{t: t, ln: ln}
}

func (v *fakeVenue) accept() (net.Conn, *bufio.Scanner) {
	v.ln.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := v.ln.Accept()
	if err != nil {
		v.t.Fatalf("accept failed: %v", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Split(ScanFrames)
	return conn, scanner
}

func (v *fakeVenue) read(scanner *bufio.Scanner) *Message {
	if !scanner.Scan() {
		v.t.Fatalf("venue read failed: %v", scanner.Err())
	}
	msg, err := Parse(scanner.Bytes())
	if err != nil {
		v.t.Fatalf("venue parse failed: %v", err)
	}
	return msg
}

type quote struct {
	bid, ask fixed.Price
}

func startClient(t *testing.T, addr string) (*Client, chan quote) {
	quotes := make(chan quote, 16)
	c := NewClient(ClientConfig{
		Addr:      addr,
		Symbol:    "USDJPY",
		Account:   "acct-1",
		Password:  "secret",
		Heartbeat: time.Second,
		Reconnect: 50 * time.Millisecond,
	}, &infra.Metrics{}, func(bid, ask fixed.Price, hasBid, hasAsk bool, at time.Time) {
		if hasBid && hasAsk {
			quotes <- quote{bid, ask}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		c.Disconnect()
	})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c, quotes
}

func TestClientLogonSubscribeAndQuotes(t *testing.T) {
	venue := newFakeVenue(t)
	c, quotes := startClient(t, venue.ln.Addr().String())

	conn, scanner := venue.accept()
	defer conn.Close()

	logon := venue.read(scanner)
	if logon.Type != MsgTypeLogon {
		t.Fatalf("expected logon, got %s", logon.Type)
	}
	if user, _ := logon.Get(TagUsername); user != "acct-1" {
		t.Errorf("expected account in logon, got %q", user)
	}

	conn.Write(Encode(MsgTypeLogon, Field{TagHeartBtInt, "1"}))

	sub := venue.read(scanner)
	if sub.Type != MsgTypeMDRequest {
		t.Fatalf("expected market data request, got %s", sub.Type)
	}
	if sym, _ := sub.Get(TagSymbol); sym != "USDJPY" {
		t.Errorf("expected symbol USDJPY, got %q", sym)
	}

	conn.Write(Encode(MsgTypeMDSnapshot,
		Field{TagMDEntryType, EntryTypeBid},
		Field{TagMDEntryPx, "188.12340"},
		Field{TagMDEntryType, EntryTypeAsk},
		Field{TagMDEntryPx, "188.12560"},
	))

	select {
	case q := <-quotes:
		if q.bid != 18812340 || q.ask != 18812560 {
			t.Errorf("unexpected quote %+v", q)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("quote never delivered")
	}

	if c.State() != StateSubscribed {
		t.Errorf("expected SUBSCRIBED state, got %d", c.State())
	}
}

func TestClientAnswersTestRequest(t *testing.T) {
	venue := newFakeVenue(t)
	startClient(t, venue.ln.Addr().String())

	conn, scanner := venue.accept()
	defer conn.Close()

	venue.read(scanner) // logon
	conn.Write(Encode(MsgTypeLogon))
	venue.read(scanner) // subscription

	conn.Write(Encode(MsgTypeTestRequest, Field{TagTestReqID, "ping-7"}))

	reply := venue.read(scanner)
	if reply.Type != MsgTypeHeartbeat {
		t.Fatalf("expected heartbeat reply, got %s", reply.Type)
	}
	if id, _ := reply.Get(TagTestReqID); id != "ping-7" {
		t.Errorf("expected echoed test request id, got %q", id)
	}
}

func TestClientReconnectsAfterLogout(t *testing.T) {
	venue := newFakeVenue(t)
	startClient(t, venue.ln.Addr().String())

	conn, scanner := venue.accept()
	venue.read(scanner) // logon
	conn.Write(Encode(MsgTypeLogout, Field{TagText, "maintenance"}))
	conn.Close()

	// The client must tear down and dial again after the fixed backoff.
	conn2, scanner2 := venue.accept()
	defer conn2.Close()
	relogon := venue.read(scanner2)
	if relogon.Type != MsgTypeLogon {
		t.Fatalf("expected fresh logon after reconnect, got %s", relogon.Type)
	}
}
