package ipc

import "testing"

func TestSendReceiveRoundTrip(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	if err := q.Send(Message{From: 3, Bytes: []byte("hi")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m, err := q.Receive(7)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(m.Bytes) != "hi" || m.From != 3 {
		t.Fatalf("got %+v", m)
	}
}

func TestReceiveFailsForNonOwner(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	q.Send(Message{From: 3, Bytes: []byte("x")})
	if _, err := q.Receive(9); err == nil {
		t.Fatalf("Receive by non-owner succeeded")
	}
}

func TestReceiveEmptyFailsNoData(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	if _, err := q.Receive(7); err == nil {
		t.Fatalf("Receive on empty queue succeeded")
	}
}

func TestSendRestrictedEndpointRejectsWrongSender(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Process, Pid: 3}, 4)
	if err := q.Send(Message{From: 4, Bytes: []byte("x")}); err == nil {
		t.Fatalf("Send from wrong pid succeeded")
	}
	if err := q.Send(Message{From: 3, Bytes: []byte("x")}); err != nil {
		t.Fatalf("Send from allowed pid failed: %v", err)
	}
}

func TestPushIntoFullQueueDropsOldest(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 2)
	q.Send(Message{From: 1, Bytes: []byte("a")})
	q.Send(Message{From: 1, Bytes: []byte("b")})
	q.Send(Message{From: 1, Bytes: []byte("c")})
	if q.Available() != 2 {
		t.Fatalf("Available = %d, want 2", q.Available())
	}
	m, _ := q.Receive(7)
	if string(m.Bytes) != "b" {
		t.Fatalf("oldest surviving message = %q, want %q", m.Bytes, "b")
	}
}

func TestReadFailsBufferTooSmall(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	q.Send(Message{From: 1, Bytes: []byte("hello")})
	buf := make([]byte, 2)
	if _, err := q.Read(7, buf); err == nil {
		t.Fatalf("Read into undersized buffer succeeded")
	}
	if q.Available() != 1 {
		t.Fatalf("message removed despite failed Read")
	}
}

func TestWriteThenReadByteView(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	if _, err := q.Write(3, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := q.Read(7, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "payload" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestPeekLenDoesNotConsume(t *testing.T) {
	q := NewMessageQueue(7, Endpoint{Kind: Any}, 4)
	q.Send(Message{From: 1, Bytes: []byte("abcd")})
	n, err := q.PeekLen(7)
	if err != nil {
		t.Fatalf("PeekLen: %v", err)
	}
	if n != 4 {
		t.Fatalf("PeekLen = %d, want 4", n)
	}
	if q.Available() != 1 {
		t.Fatalf("PeekLen consumed the message")
	}
}
