package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ideaforge/internal/eventbus"
	"ideaforge/internal/iterate"
	"ideaforge/internal/summary"
	"ideaforge/internal/types"
)

func summaryRender(wf *types.WorkflowSession, base *types.SummaryDocument) *types.SummaryDocument {
	last := wf.LastVersion()
	if last == nil {
		return base
	}
	return summary.Render(*last, wf.Verification, base)
}

// startDriverLocked launches the iteration driver goroutine unless one is
// already running. Caller holds s.mu. The driver clears s.driving itself,
// in the same critical section in which it decides to exit, so a Resume
// or ResolveVerification that observes driving == false can always
// relaunch safely and one that observes true always has a live driver
// still ahead of its state check.
func (o *Orchestrator) startDriverLocked(s *session) {
	if s.driving {
		return
	}
	s.driving = true
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.drive(s)
	}()
}

// drive runs the round loop for one session until convergence, failure,
// or an external pause/stop. It is the only goroutine appending versions
// for its session, which keeps the history append-only and ordered.
// Every exit path flips s.driving back to false while still holding the
// lock under which the exit was decided; clearing it any later would let
// Resume see a stale true and skip the relaunch.
func (o *Orchestrator) drive(s *session) {
	ctx := context.Background()
	policy := iterate.NewPolicy(o.cfg.Policy)

	for {
		s.mu.Lock()
		if s.wf.State != types.StateAdvIterating {
			s.driving = false
			s.mu.Unlock()
			return
		}
		epoch := s.epoch
		prev := *s.wf.LastVersion()
		s.mu.Unlock()

		res, err := o.runRoundWithRetry(ctx, prev)

		s.mu.Lock()
		if s.wf.State != types.StateAdvIterating {
			// paused or stopped mid-round: discard the result
			s.driving = false
			s.mu.Unlock()
			return
		}
		if s.epoch != epoch {
			// paused and resumed while the round was in flight; the
			// result is stale, redo the round
			s.mu.Unlock()
			continue
		}
		if err != nil {
			log.Printf("workflow: session %s round failed: %v", s.wf.ID, err)
			if terr := s.wf.Transition(types.StateError); terr != nil {
				log.Printf("workflow: session %s: %v", s.wf.ID, terr)
			}
			o.persistLocked(s)
			o.emit(eventbus.TopicWorkflowFailed, s.wf, types.ErrorKind(err))
			s.driving = false
			s.mu.Unlock()
			return
		}
		s.wf.Versions = append(s.wf.Versions, res.Version)
		o.persistLocked(s)
		o.progress(s.wf, fmt.Sprintf("round %d: %d/%d deltas kept, mean score %.2f",
			res.Version.VersionNumber, res.Kept, len(res.Deltas), res.Version.Scores.Mean()))
		stop, reason := policy.Observe(prev.Scores.Mean(), res.Version.Scores.Mean())
		s.mu.Unlock()

		if stop {
			o.verifyAndFinish(ctx, s, reason)
			return
		}
	}
}

// runRoundWithRetry retries a failed round with exponential backoff up to
// the configured budget. NotFound/InvalidState class errors would be
// engine bugs here; everything surfacing from a round is retryable.
func (o *Orchestrator) runRoundWithRetry(ctx context.Context, prev types.IterationVersion) (*iterate.RoundResult, error) {
	var lastErr error
	delay := o.cfg.RoundRetryDelay
	for attempt := 1; attempt <= o.cfg.RoundAttempts; attempt++ {
		res, err := o.iterator.RunRound(ctx, prev)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt < o.cfg.RoundAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return nil, lastErr
}

// verifyAndFinish runs verification on the converged version and, on
// success, carries the session through to DONE. Only the driver calls it,
// and the round loop never resumes after it: each exit clears s.driving
// under the lock, same as drive's own exits. The strict-failure branch in
// particular must clear the flag, or ResolveVerification's reject path
// could not relaunch.
func (o *Orchestrator) verifyAndFinish(ctx context.Context, s *session, reason string) {
	s.mu.Lock()
	if s.wf.State != types.StateAdvIterating {
		s.driving = false
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	last := *s.wf.LastVersion()
	o.progress(s.wf, "iteration stopped: "+reason)
	s.mu.Unlock()

	report, err := o.verifier.Verify(ctx, last)

	s.mu.Lock()
	if s.wf.State != types.StateAdvIterating || s.epoch != epoch {
		s.driving = false
		s.mu.Unlock()
		return
	}
	if errors.Is(err, types.ErrVerificationFailed) {
		// strict mode: keep the session in ADV_ITERATING with the failed
		// report recorded, awaiting manual resolution
		s.wf.Verification = report
		o.persistLocked(s)
		o.emit(eventbus.TopicWorkflowFailed, s.wf, "verification failed; awaiting manual resolution")
		s.driving = false
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("workflow: session %s verification failed: %v", s.wf.ID, err)
		if terr := s.wf.Transition(types.StateError); terr != nil {
			log.Printf("workflow: session %s: %v", s.wf.ID, terr)
		}
		o.persistLocked(s)
		o.emit(eventbus.TopicWorkflowFailed, s.wf, types.ErrorKind(err))
		s.driving = false
		s.mu.Unlock()
		return
	}
	s.wf.Verification = report
	if terr := s.wf.Transition(types.StateVerified); terr != nil {
		log.Printf("workflow: session %s: %v", s.wf.ID, terr)
		s.driving = false
		s.mu.Unlock()
		return
	}
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowStageChanged, s.wf, "verified")
	s.driving = false
	s.mu.Unlock()

	o.finalize(s)
}

// finalize renders the summary and completes the session. Reached from
// the driver after VERIFIED, and from ResolveVerification's accept path
// where the session still sits in ADV_ITERATING with a recorded report.
func (o *Orchestrator) finalize(s *session) {
	s.mu.Lock()
	if s.wf.State == types.StateAdvIterating && s.wf.Verification != nil {
		if err := s.wf.Transition(types.StateVerified); err != nil {
			s.mu.Unlock()
			return
		}
		o.persistLocked(s)
		o.emit(eventbus.TopicWorkflowStageChanged, s.wf, "verification accepted")
	}
	if s.wf.State != types.StateVerified {
		s.mu.Unlock()
		return
	}
	if err := s.wf.Transition(types.StateFormatting); err != nil {
		s.mu.Unlock()
		return
	}
	o.persistLocked(s)
	o.progress(s.wf, "rendering summary")
	clarID := s.wf.ClarificationID
	s.mu.Unlock()

	var base *types.SummaryDocument
	if clarID != "" {
		if view, err := o.clarifier.Status(clarID); err == nil {
			base = view.Summary
		}
	}

	s.mu.Lock()
	if s.wf.State != types.StateFormatting {
		s.mu.Unlock()
		return
	}
	s.wf.Summary = summaryRender(s.wf, base)
	if err := s.wf.Transition(types.StateDone); err != nil {
		s.mu.Unlock()
		return
	}
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowCompleted, s.wf, "done")
	snapshot := *s.wf
	s.mu.Unlock()

	if o.archive != nil {
		actx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.archive.Archive(actx, &snapshot); err != nil {
			log.Printf("workflow: archive session %s: %v", snapshot.ID, err)
		}
	}
}

func (o *Orchestrator) emit(topic string, wf *types.WorkflowSession, msg string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{
		Type:      topic,
		SessionID: wf.ID,
		Stage:     string(wf.State),
		Progress:  o.progressOf(wf),
		Message:   msg,
	})
}

func (o *Orchestrator) progress(wf *types.WorkflowSession, msg string) {
	o.emit(eventbus.TopicWorkflowProgress, wf, msg)
}

// progressOf maps session state to a 0-100 progress figure; the
// iteration band scales with completed rounds against the budget.
func (o *Orchestrator) progressOf(wf *types.WorkflowSession) int {
	switch wf.State {
	case types.StateInit:
		return 0
	case types.StateClarifying:
		return 10
	case types.StateClarified:
		return 25
	case types.StateAdvIterating, types.StatePaused, types.StateError, types.StateStopped:
		rounds := len(wf.Versions) - 1
		if rounds < 0 {
			return 10
		}
		max := o.cfg.Policy.MaxRounds
		if max <= 0 {
			max = 5
		}
		p := 30 + rounds*40/max
		if p > 70 {
			p = 70
		}
		return p
	case types.StateVerified:
		return 80
	case types.StateFormatting:
		return 90
	case types.StateDone:
		return 100
	}
	return 0
}
