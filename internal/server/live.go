package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/app"
	"github.com/ayusman/signsync/internal/capture"
)

// TranslationEvent is pushed to websocket clients for every smoothed
// prediction with a detected hand.
type TranslationEvent struct {
	Event      string  `json:"event"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// EventTranslationResult names translation events.
const EventTranslationResult = "translation_result"

// Live runs the server's camera loop. It is the only writer of its session;
// handlers read snapshots and subscribe to events.
type Live struct {
	camera  capture.Camera
	session *app.Session
	log     logrus.FieldLogger

	mu          sync.RWMutex
	frame       []byte
	last        app.Prediction
	subscribers map[chan TranslationEvent]struct{}
}

// NewLive creates a camera loop over session.
func NewLive(camera capture.Camera, session *app.Session, log logrus.FieldLogger) *Live {
	return &Live{
		camera:      camera,
		session:     session,
		log:         log.WithField("component", "live"),
		subscribers: make(map[chan TranslationEvent]struct{}),
	}
}

// Run processes frames until ctx is done. Read failures are retried after a
// short pause.
func (l *Live) Run(ctx context.Context) error {
	if err := l.camera.Open(); err != nil {
		return err
	}
	defer l.camera.Close()

	l.log.Info("live camera loop started")
	defer l.log.Info("live camera loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		delay := app.FrameDelay
		if err := l.step(); err != nil {
			if !errors.Is(err, capture.ErrNoFrame) {
				l.log.WithError(err).Warn("frame skipped")
			}
			delay = 100 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (l *Live) step() error {
	frame, err := l.camera.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	p := l.session.ProcessFrame(frame)
	app.Annotate(frame, p)

	jpeg, err := capture.EncodeJPEG(frame)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.frame = jpeg
	l.last = p
	l.mu.Unlock()

	if p.HandDetected() {
		l.publish(TranslationEvent{
			Event:      EventTranslationResult,
			Text:       p.Label,
			Confidence: p.Confidence,
			Timestamp:  p.At.UnixMilli(),
		})
	}
	return nil
}

// Frame returns the latest annotated JPEG, or nil before the first frame.
func (l *Live) Frame() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

// Last returns the latest prediction.
func (l *Live) Last() app.Prediction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Subscribe registers for translation events. Slow subscribers miss
// events rather than block the loop. Call the returned function to stop.
func (l *Live) Subscribe() (<-chan TranslationEvent, func()) {
	ch := make(chan TranslationEvent, 16)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, ch)
			l.mu.Unlock()
		})
	}
}

func (l *Live) publish(ev TranslationEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for ch := range l.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
