package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/prediction"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("dispatcher closed")

// Predictor is the prediction service as seen by the dispatcher
type Predictor interface {
	GetPrediction(ctx context.Context, inst domain.Instrument) (prediction.Prediction, error)
}

// Delivery reports the outcome of one asynchronous request, sent once the
// Notifier has been called.
type Delivery struct {
	Channel    string
	Recipient  string
	Instrument domain.Instrument
	Text       string
	// Err is the prediction error, if any
	Err error
	// SendErr is the Notifier error, if any
	SendErr error
}

// Dispatcher acknowledges requests synchronously and answers them in the
// background
type Dispatcher struct {
	predictor Predictor
	timeout   time.Duration
	metrics   *metrics.Recorder
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Each request's computation and send is
// bounded by timeout.
func NewDispatcher(predictor Predictor, timeout time.Duration, rec *metrics.Recorder, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Dispatcher{
		predictor: predictor,
		timeout:   timeout,
		metrics:   rec,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Submit parses text and, when it is a valid command, schedules the
// prediction and returns the acknowledgement along with a channel that
// receives exactly one Delivery. An unparseable command returns
// InvalidFormatText and an InvalidInput error; nothing is scheduled.
func (d *Dispatcher) Submit(sink Notifier, to, from, text string) (string, <-chan Delivery, error) {
	inst, err := ParseCommand(text)
	if err != nil {
		d.metrics.ChannelMessage(sink.Name(), "invalid")
		return InvalidFormatText, nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", nil, ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	done := make(chan Delivery, 1)
	go d.process(sink, Message{To: to, From: from}, inst, done)

	d.metrics.ChannelMessage(sink.Name(), "accepted")
	return AckText(inst), done, nil
}

func (d *Dispatcher) process(sink Notifier, reply Message, inst domain.Instrument, done chan<- Delivery) {
	delivery := Delivery{Channel: sink.Name(), Recipient: reply.To, Instrument: inst}
	log := d.log.With().
		Str("channel", sink.Name()).
		Str("market", string(inst.Market)).
		Str("symbol", inst.Symbol).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Channel request panicked")
			delivery.Err = domain.NewError(domain.KindInternal, "dispatch", inst.String(), fmt.Errorf("panic: %v", r))
		}
		done <- delivery
		close(done)
		d.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	p, err := d.predictor.GetPrediction(ctx, inst)
	if err != nil {
		delivery.Err = err
		reply.Text = ErrorText(inst, err)
	} else {
		reply.Text = ResultText(inst, p.Value)
	}
	delivery.Text = reply.Text

	if err := sink.Send(ctx, reply); err != nil {
		delivery.SendErr = err
		log.Error().Err(err).Msg("Failed to deliver reply")
		d.metrics.ChannelMessage(sink.Name(), "failed")
		return
	}
	log.Debug().Bool("error_reply", delivery.Err != nil).Msg("Reply delivered")
	d.metrics.ChannelMessage(sink.Name(), "delivered")
}

// Close stops accepting requests and waits for in-flight ones to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
