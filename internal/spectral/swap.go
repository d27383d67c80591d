// SPDX-License-Identifier: MIT
package spectral

import (
	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
)

// WindowOrderChanged schedules a full configuration rebuild on the
// background worker. The signal channel holds one pending request;
// coalescing further changes is fine because the worker reads the
// window order at build time. Safe to call from any thread, including
// before Prepare (where it is a no-op).
func (e *Engine) WindowOrderChanged() {
	if e.rebuildCh == nil {
		return
	}
	select {
	case e.rebuildCh <- struct{}{}:
	default:
	}
}

// rebuildWorker builds replacement process states off the audio thread.
// Each rebuild allocates a complete new procState and publishes it with
// a single atomic store; the audio thread adopts it at the start of its
// next block. A rebuild that is superseded before adoption is simply
// overwritten in the publish slot and collected, which wastes the work
// but can never expose a partially built state.
func (e *Engine) rebuildWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.rebuildCh:
			order := e.WindowOrder()
			st := newProcState(order, e.channels, e.sampleRate)
			e.published.Store(st)
			// The new bank starts unconfigured; make sure the next
			// block refreshes it before processing.
			e.settingsDirty.Store(true)
			applog.Debugf("Spectral: rebuilt configuration (window %d)", st.windowSize)
		}
	}
}
