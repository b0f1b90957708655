package coordinator

import (
	"context"
	log "log/slog"
	"time"

	"blindnav/internal/currency"
	"blindnav/internal/speech"
)

// currencyLoop captures and classifies a frame every CurrencyCadence.
func (c *Coordinator) currencyLoop(ctx context.Context, epoch uint64) {
	t := time.NewTicker(c.opts.CurrencyCadence)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		c.detect(ctx, epoch, false)
	}
}

// ManualCapture runs one detection outside the loop cadence. Failures are
// spoken, and guidance is not throttled.
func (c *Coordinator) ManualCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.mode != Currency {
		return false
	}
	c.speaker.Say(ManualCapturePhrase, speech.Flush)

	ctx, epoch := c.modeCtx, c.epoch
	c.goLocked(func() { c.detect(ctx, epoch, true) })
	return true
}

// Total speaks the ledger report.
func (c *Coordinator) Total() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Currency {
		c.speaker.Say(c.ledger.Report(), speech.Flush)
	}
}

// ResetLedger empties the ledger.
func (c *Coordinator) ResetLedger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Currency {
		c.resetLedgerLocked()
	}
}

func (c *Coordinator) resetLedgerLocked() {
	c.ledger.Reset()
	c.speaker.Say(currency.ResetMessage, speech.Flush)
	log.Info("Ledger reset", "session", c.session)
	c.publishLocked()
}

func (c *Coordinator) detect(ctx context.Context, epoch uint64, manual bool) {
	img, err := c.capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("Capture failed", "mode", Currency, "manual", manual, "err", err)
		if manual {
			c.sayIfCurrent(epoch, CaptureErrorMessage, speech.Flush)
		}
		return
	}

	tk, err := c.admit(ctx, c.currencyLane, c.frame(img))
	if err != nil {
		return
	}
	r, err := c.classifier.Classify(ctx, img)
	tk.Release(err == nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		log.Debug("Dropped stale detection", "epoch", epoch, "current", c.epoch)
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("Currency classification failed", "manual", manual, "err", err)
		if manual {
			c.speaker.Say(CurrencyErrorMessage, speech.Flush)
		}
		return
	}
	c.applyLocked(r, manual)
}

func (c *Coordinator) applyLocked(r currency.Reading, manual bool) {
	switch {
	case len(r.Detected) > 0:
		added := c.ledger.Record(r.Detected)
		if len(added) > 0 {
			log.Info("Notes counted", "session", c.session, "added", added, "total", c.ledger.Total())
			c.speaker.Say(c.ledger.Announcement(added), speech.Flush)
			c.publishLocked()
		} else if manual {
			c.speaker.Say(c.ledger.Report(), speech.Flush)
		}
	case len(r.Possible) > 0:
		if manual || c.guidance.Allow() {
			c.speaker.Say(currency.PossibleMessage(r, c.opts.Unit), speech.Flush)
		}
	default:
		if manual || c.guidance.Allow() {
			c.speaker.Say(currency.GuidanceMessage, speech.Flush)
		}
	}
}
