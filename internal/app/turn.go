package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hark/internal/conversation"
	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/internal/transcript"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/stt"
)

// Outcome classifies how a turn ended. It is also the "outcome" attribute of
// the turns metric.
type Outcome string

const (
	// OutcomeSilent means no segment arrived within the listen timeout.
	OutcomeSilent Outcome = "silent"
	// OutcomeFiltered means the transcript was empty, a silence marker or a
	// hallucination.
	OutcomeFiltered Outcome = "filtered"
	// OutcomeError means a provider failed; the loop carries on.
	OutcomeError Outcome = "error"
	// OutcomeExit means the user said an exit keyword.
	OutcomeExit Outcome = "exit"
	// OutcomeResponded means a reply was produced and spoken.
	OutcomeResponded Outcome = "responded"
	// OutcomeCanceled means ctx ended the turn.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeStopped means capture has ended and no segment was left.
	OutcomeStopped Outcome = "stopped"
)

// TurnResult describes one pass through the pipeline.
type TurnResult struct {
	Outcome Outcome

	// SegmentID names the captured segment. Empty for silent turns.
	SegmentID string

	// Transcript is the raw transcription.
	Transcript string

	// Reply is the model's answer before it was made speakable.
	Reply string

	// Handover is set when the user ended with the turn keyword.
	Handover bool

	// Err is the provider error behind OutcomeError.
	Err error
}

// Turn waits for one utterance and takes it through transcription,
// filtering, the conversation and speech. Provider failures are reported in
// the result instead of stopping the loop.
func (a *App) Turn(ctx context.Context) TurnResult {
	seg := a.listener.WaitForSpeechContext(ctx, a.cfg.App.ListenTimeout)
	if len(seg) == 0 {
		if ctx.Err() != nil {
			return TurnResult{Outcome: OutcomeCanceled}
		}
		if !a.captureEnded() {
			a.metrics.RecordTurn(ctx, string(OutcomeSilent))
			return TurnResult{Outcome: OutcomeSilent}
		}
		// A segment handed over just before capture ended is still processed.
		if seg = a.listener.WaitForSpeechContext(ctx, 0); len(seg) == 0 {
			return TurnResult{Outcome: OutcomeStopped}
		}
	}

	id := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "app.turn", trace.WithAttributes(
		attribute.String("segment.id", id),
		attribute.Float64("segment.seconds", stt.SegmentDuration(len(seg), a.cfg.Audio.SampleRate).Seconds()),
	))
	defer span.End()

	start := time.Now()
	res := a.handleSegment(ctx, id, seg)
	a.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("turn.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if res.Outcome != OutcomeCanceled {
		a.metrics.RecordTurn(ctx, string(res.Outcome))
	}
	return res
}

func (a *App) captureEnded() bool {
	select {
	case <-a.listener.Done():
		return true
	default:
		return false
	}
}

func (a *App) handleSegment(ctx context.Context, id string, seg []float32) TurnResult {
	log := observe.Logger(ctx).With("segment_id", id)
	res := TurnResult{SegmentID: id}

	if a.cfg.App.SegmentDir != "" {
		a.dumpSegment(ctx, id, seg)
	}

	start := time.Now()
	tr, err := a.stt.Transcribe(ctx, seg, a.cfg.Audio.SampleRate)
	a.metrics.RecordStage(ctx, "stt", a.cfg.STT.Name, time.Since(start), err)
	if err != nil {
		return a.failed(ctx, res, "transcription failed", err)
	}
	res.Transcript = tr.Text
	log.InfoContext(ctx, "heard", "text", tr.Text, "duration", tr.Duration)

	if !transcript.Usable(tr.Text) {
		log.DebugContext(ctx, "transcript discarded", "text", tr.Text)
		res.Outcome = OutcomeFiltered
		return res
	}

	if a.keywords.IsExit(tr.Text) {
		log.InfoContext(ctx, "exit keyword detected")
		if err := a.speak(ctx, GoodbyeMessage); err != nil && ctx.Err() == nil {
			log.WarnContext(ctx, "goodbye playback failed", "err", err)
		}
		res.Outcome = OutcomeExit
		return res
	}

	res.Handover = a.keywords.HasTurnKeyword(tr.Text)
	text := tr.Text
	if res.Handover {
		text = a.keywords.StripTurnKeyword(text)
	}

	reply, err := a.responder.Respond(ctx, text)
	if err != nil {
		return a.failed(ctx, res, "response failed", err)
	}
	res.Reply = reply
	res.Outcome = OutcomeResponded

	spoken := conversation.Speakable(reply)
	if spoken == "" {
		log.WarnContext(ctx, "nothing to say")
		return res
	}
	log.InfoContext(ctx, "replying", "text", spoken)
	if err := a.speak(ctx, spoken); err != nil {
		return a.failed(ctx, res, "speech failed", err)
	}
	return res
}

func (a *App) speak(ctx context.Context, text string) error {
	start := time.Now()
	err := a.speaker.Speak(ctx, text)
	a.metrics.RecordStage(ctx, "tts", a.cfg.TTS.Name, time.Since(start), err)
	return err
}

// failed marks res as an error turn, or as canceled when ctx ended it.
func (a *App) failed(ctx context.Context, res TurnResult, msg string, err error) TurnResult {
	if ctx.Err() != nil {
		res.Outcome = OutcomeCanceled
		return res
	}
	observe.Logger(ctx).ErrorContext(ctx, msg, "segment_id", res.SegmentID, "err", err)
	res.Outcome = OutcomeError
	res.Err = err
	return res
}

// dumpSegment writes seg as <SegmentDir>/<id>.wav. Failures are logged only.
func (a *App) dumpSegment(ctx context.Context, id string, seg []float32) {
	data, err := audio.EncodeWAVFloat(seg, a.cfg.Audio.SampleRate)
	if err == nil {
		err = os.WriteFile(filepath.Join(a.cfg.App.SegmentDir, id+".wav"), data, 0o644)
	}
	if err != nil {
		observe.Logger(ctx).WarnContext(ctx, "segment dump failed", "segment_id", id, "err", err)
	}
}
