package gateway

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/tts"
)

const queryQueueSize = 8

// Answerer answers a question given a context string
type Answerer interface {
	Ask(ctx context.Context, question, qaContext string) (string, error)
}

// dispatcher answers queries one at a time and speaks the answers
type dispatcher struct {
	answerer  Answerer
	speaker   *tts.Speaker
	qaContext func() string
	send      func(ServerMessage) bool
	play      tts.PlayFunc
	// resume restarts listening when speech could not be produced
	resume func()
	logger zerolog.Logger

	queries chan string
}

// submit queues a query. It reports false when the queue is full.
func (d *dispatcher) submit(question string) bool {
	question = strings.TrimSpace(question)
	if question == "" {
		return false
	}
	select {
	case d.queries <- question:
		return true
	default:
		d.logger.Warn().Msg("Query queue full, dropping query")
		return false
	}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-d.queries:
			d.handle(ctx, q)
		}
	}
}

func (d *dispatcher) handle(ctx context.Context, question string) {
	d.logger.Debug().Str("question", question).Msg("Answering query")

	answer, err := d.answerer.Ask(ctx, question, d.qaContext())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.send(ServerMessage{Type: msgAnswerError, Question: question, Error: err.Error()})
		return
	}

	d.send(ServerMessage{Type: msgAnswer, Question: question, Text: answer})

	if _, err := d.speaker.Speak(ctx, answer, d.play); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn().Err(err).Msg("Failed to speak answer")
		d.resume()
	}
}
