// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
	"github.com/SoundWareInc/spectral-compressor/internal/transport"
)

// Publisher periodically reads gain-reduction and peak meters from the
// engine, packs them into a binary packet, and sends them over UDP. It
// runs in its own goroutine between Start and Stop.
type Publisher struct {
	sender   *Sender
	meters   transport.MeterProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	// Pre-allocated buffers so the tick path does not allocate.
	reduction    []float64
	reductionF32 []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a publisher sized for the provider's largest
// possible meter snapshot. An interval <= 0 defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, meters transport.MeterProvider, maxBins int) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if meters == nil {
		return nil, fmt.Errorf("udp publisher: meter provider cannot be nil")
	}
	if maxBins <= 0 {
		return nil, fmt.Errorf("udp publisher: invalid bin count %d", maxBins)
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDP publisher: invalid interval, defaulting to %s", interval)
	}

	applog.Infof("UDP publisher: initializing (interval: %s, max bins: %d)", interval, maxBins)
	return &Publisher{
		sender:       sender,
		meters:       meters,
		interval:     interval,
		reduction:    make([]float64, maxBins),
		reductionF32: make([]float32, maxBins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publisher goroutine. Calling Start while running
// is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDP publisher: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDP publisher: started (interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				applog.Debugf("UDP publisher: stop signal received")
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit and waits for it. Safe to call
// more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDP publisher: stopped")
	return nil
}

/*
Packet layout (BigEndian):

|<-- 4 B -->|<---- 8 B ---->|<- 4 B ->|<- 4 B ->|<- 2 B ->|<-- N * 4 B -->|
+-----------+---------------+---------+---------+---------+---------------+
| Sequence  |   Timestamp   | InPeak  | OutPeak |  Count  | GainReduction |
|  (uint32) |    (int64)    |(float32)|(float32)|(uint16) | (N * float32) |
+-----------+---------------+---------+---------+---------+---------------+
*/

func (p *Publisher) buildAndSendPacket() {
	n := p.meters.GainReduction(p.reduction)
	if n == 0 {
		return // Engine not prepared yet
	}
	inPeak, outPeak := p.meters.Peaks()

	for i := 0; i < n; i++ {
		p.reductionF32[i] = float32(p.reduction[i])
	}

	p.sequenceNum++
	timestamp := time.Now().UnixNano()

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(inPeak))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(outPeak))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(n))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.reductionF32[:n])
	}
	if err != nil {
		applog.Errorf("UDP publisher: error packing packet: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		applog.Debugf("UDP publisher: sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close implements io.Closer by stopping the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
