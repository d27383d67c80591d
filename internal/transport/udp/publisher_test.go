// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// fakeMeters is a MeterProvider returning a fixed snapshot.
type fakeMeters struct {
	reduction []float64
	inPeak    float64
	outPeak   float64
}

func (f *fakeMeters) GainReduction(dst []float64) int {
	return copy(dst, f.reduction)
}

func (f *fakeMeters) Peaks() (float64, float64) {
	return f.inPeak, f.outPeak
}

func (f *fakeMeters) BinFrequency(i int) float64 {
	return float64(i+1) * 86.13
}

func TestPublisherSendsWellFormedPackets(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	meters := &fakeMeters{
		reduction: []float64{1.0, 0.5, 0.25, 0.125},
		inPeak:    0.9,
		outPeak:   0.45,
	}
	publisher, err := NewPublisher(5*time.Millisecond, sender, meters, 8)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	publisher.Start()
	defer publisher.Stop()

	buf := make([]byte, 2048)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no packet received: %v", err)
	}

	r := bytes.NewReader(buf[:n])
	var (
		sequence  uint32
		timestamp int64
		inPeak    float32
		outPeak   float32
		count     uint16
	)
	for _, field := range []any{&sequence, &timestamp, &inPeak, &outPeak, &count} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			t.Fatalf("reading header: %v", err)
		}
	}

	if sequence == 0 {
		t.Error("sequence number should start at 1")
	}
	if timestamp <= 0 {
		t.Error("timestamp missing")
	}
	if inPeak != 0.9 || outPeak != 0.45 {
		t.Errorf("peaks: got %v/%v, want 0.9/0.45", inPeak, outPeak)
	}
	if int(count) != len(meters.reduction) {
		t.Fatalf("bin count: got %d, want %d", count, len(meters.reduction))
	}

	values := make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, values); err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	for i, want := range meters.reduction {
		if values[i] != float32(want) {
			t.Errorf("bin %d: got %v, want %v", i, values[i], want)
		}
	}
	if r.Len() != 0 {
		t.Errorf("%d trailing bytes in packet", r.Len())
	}
}

func TestPublisherSequenceNumbersIncrease(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	meters := &fakeMeters{reduction: []float64{1.0}}
	publisher, err := NewPublisher(2*time.Millisecond, sender, meters, 4)
	if err != nil {
		t.Fatal(err)
	}
	publisher.Start()
	defer publisher.Stop()

	var last uint32
	buf := make([]byte, 256)
	for i := 0; i < 3; i++ {
		listener.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		seq := binary.BigEndian.Uint32(buf[:n])
		if seq <= last {
			t.Errorf("sequence did not increase: %d after %d", seq, last)
		}
		last = seq
	}
}

func TestPublisherSkipsWhenNoMeters(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	// Zero bins means the engine is not prepared yet; nothing should go
	// out on the wire.
	publisher, err := NewPublisher(2*time.Millisecond, sender, &fakeMeters{}, 4)
	if err != nil {
		t.Fatal(err)
	}
	publisher.Start()
	defer publisher.Stop()

	buf := make([]byte, 64)
	listener.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := listener.ReadFromUDP(buf); err == nil {
		t.Error("received a packet from an unprepared meter source")
	}
}

func TestPublisherStopIsIdempotent(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	publisher, err := NewPublisher(time.Millisecond, sender, &fakeMeters{reduction: []float64{1}}, 4)
	if err != nil {
		t.Fatal(err)
	}

	if err := publisher.Stop(); err != nil { // Stop before Start
		t.Errorf("Stop before Start: %v", err)
	}
	publisher.Start()
	if err := publisher.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	if err := publisher.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSenderRejectsSendAfterClose(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sender.Send([]byte{1, 2, 3}); err == nil {
		t.Error("Send after Close should fail")
	}
}
