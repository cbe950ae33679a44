package cmdchan

import "testing"

func TestPublishReceiveRoundTrip(t *testing.T) {
	ch := New()
	if err := ch.Publish(MsgJogCont, []byte{1, 2, 3}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	msg, ok := ch.Receive()
	if !ok {
		t.Fatalf("Receive() ok=false, want true")
	}
	if msg.Type != MsgJogCont {
		t.Errorf("Type = %v, want MsgJogCont", msg.Type)
	}
	if msg.Serial != 1 {
		t.Errorf("Serial = %v, want 1", msg.Serial)
	}
}

func TestReceiveFalseWithoutNewPublish(t *testing.T) {
	ch := New()
	_ = ch.Publish(MsgAbort, nil)
	ch.Receive()
	if _, ok := ch.Receive(); ok {
		t.Errorf("second Receive() without a new Publish = ok:true, want false")
	}
}

func TestPublishAfterEchoDoesNotTimeOut(t *testing.T) {
	ch := New()
	_ = ch.Publish(MsgJogCont, []byte{1})
	ch.Receive()
	if err := ch.Publish(MsgJogCont, []byte{2}); err != nil {
		t.Errorf("Publish after echo = %v, want nil", err)
	}
}

func TestForcePublishIgnoresOutstandingEcho(t *testing.T) {
	ch := New()
	ch.ForcePublish(MsgAbort, nil)
	msg, ok := ch.Receive()
	if !ok || msg.Type != MsgAbort {
		t.Fatalf("ForcePublish then Receive: ok=%v type=%v", ok, msg.Type)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	ch := New()
	_ = ch.Publish(MsgJogCont, nil)
	ch.Receive()
	ch.PublishStatus([]byte{9, 9})

	status := ch.ReadStatus()
	if status.Serial != 1 {
		t.Errorf("status Serial (echoed) = %v, want 1", status.Serial)
	}
	if status.Payload[0] != 9 {
		t.Errorf("status payload not round-tripped")
	}
}
