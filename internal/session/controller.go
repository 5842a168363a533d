// Package session drives a live listening session: a state machine around a
// recurring capture/recognize cycle. The controller owns the session record
// while it is in "recording"; after Stop hands it over as pending_sync, only
// the reconciler touches it.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/clubsonar/setlistd/internal/capture"
	"github.com/clubsonar/setlistd/internal/dedup"
	"github.com/clubsonar/setlistd/internal/models"
	"github.com/clubsonar/setlistd/internal/netmon"
	"github.com/clubsonar/setlistd/internal/notify"
	"github.com/clubsonar/setlistd/internal/recognition"
	"github.com/clubsonar/setlistd/internal/store"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	// StateEnding is entered before any teardown happens. From this point no
	// capture, in-flight or newly scheduled, is admitted to the queue or to
	// recognition; a cycle completing late finds the gate closed and its
	// result is discarded.
	StateEnding State = "ending"
)

var (
	ErrAlreadyActive = errors.New("a session is already recording")
	ErrNotRecording  = errors.New("no session is recording")
)

type Recognizer interface {
	Recognize(ctx context.Context, req recognition.Request) (*recognition.Response, error)
}

type Config struct {
	CycleInterval   time.Duration // time between capture cycles
	CaptureDuration time.Duration // length of each captured segment
	MaxDuration     time.Duration // hard cap forcing Stop
}

type Controller struct {
	store      *store.Store
	source     capture.Source
	recognizer Recognizer
	notifier   notify.Dispatcher
	monitor    *netmon.Monitor
	cfg        Config

	mu        sync.Mutex
	state     State
	current   *models.Session
	index     *dedup.Index
	tracks    []models.TrackIdentification
	cycleBusy bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

func NewController(
	st *store.Store,
	source capture.Source,
	recognizer Recognizer,
	notifier notify.Dispatcher,
	monitor *netmon.Monitor,
	cfg Config,
) *Controller {
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = 10 * time.Second
	}
	if cfg.CaptureDuration == 0 {
		cfg.CaptureDuration = 6 * time.Second
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 5 * time.Hour
	}

	return &Controller{
		store:      st,
		source:     source,
		recognizer: recognizer,
		notifier:   notifier,
		monitor:    monitor,
		cfg:        cfg,
		state:      StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Current() *models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// IdentifiedTracks returns the tracks recognized live during the current
// session, newest last.
func (c *Controller) IdentifiedTracks() []models.TrackIdentification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.TrackIdentification, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Start creates a session and arms the capture loop. Exactly one session can
// be recording per controller; a second Start fails with ErrAlreadyActive.
func (c *Controller) Start(ctx context.Context, ownerID, djName string, venue *models.VenueSnapshot) (*models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return nil, ErrAlreadyActive
	}

	sess := models.NewSession(ownerID, djName, venue)
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.state = StateRecording
	c.current = sess
	c.index = dedup.New()
	c.tracks = nil
	c.cancel = cancel
	c.loopDone = make(chan struct{})

	log.Printf("[SESSION] started session %s for owner %s (venue qualifying=%v)",
		sess.ID, ownerID, sess.QualifyingVenue())

	go c.runCaptureLoop(loopCtx, sess)

	return sess, nil
}

// Stop enters Ending before any teardown, disarms both timers, transitions
// the session to pending_sync and returns the controller to Idle along with
// the tracks identified live. The track list is captured inside teardown so
// an identification landing between a caller's read and the stop cannot be
// dropped.
func (c *Controller) Stop(ctx context.Context) (*models.Session, []models.TrackIdentification, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil, nil, ErrNotRecording
	}
	c.state = StateEnding
	sess := c.current
	cancel := c.cancel
	done := c.loopDone
	c.mu.Unlock()

	cancel()
	<-done

	err := c.store.EndSession(ctx, sess.ID)
	if err != nil {
		// The controller still resets, but the row must not be left in
		// "recording" or a later Start would persist a second live session.
		if uerr := c.store.UpdateSessionStatus(ctx, sess.ID, models.SessionError); uerr != nil {
			log.Printf("[STORE] failed to mark session %s errored: %v", sess.ID, uerr)
		}
	}

	c.mu.Lock()
	tracks := c.tracks
	c.state = StateIdle
	c.current = nil
	c.index = nil
	c.tracks = nil
	c.cancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	if err != nil {
		return nil, nil, err
	}

	sess.Status = models.SessionPendingSync
	log.Printf("[SESSION] ended session %s", sess.ID)
	return sess, tracks, nil
}

func (c *Controller) runCaptureLoop(ctx context.Context, sess *models.Session) {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.cfg.CycleInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.cfg.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			log.Printf("[SESSION] session %s hit the duration cap, forcing stop", sess.ID)
			go func() {
				if _, _, err := c.Stop(context.Background()); err != nil {
					log.Printf("[SESSION] forced stop failed: %v", err)
				}
			}()
		case <-ticker.C:
			// A tick arriving while a cycle is still running is dropped, not
			// buffered: single-flight, no backlog of pending cycles.
			if !c.tryBeginCycle() {
				log.Printf("[SESSION] previous cycle still running, dropping tick")
				continue
			}
			go func() {
				defer c.endCycle()
				c.runCycle(ctx, sess)
			}()
		}
	}
}

func (c *Controller) tryBeginCycle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycleBusy {
		return false
	}
	c.cycleBusy = true
	return true
}

func (c *Controller) endCycle() {
	c.mu.Lock()
	c.cycleBusy = false
	c.mu.Unlock()
}

// admitting reports whether capture results may still enter the queue or the
// recognition path for this session.
func (c *Controller) admitting(sess *models.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRecording && c.current != nil && c.current.ID == sess.ID
}

// runCycle performs one capture/recognize round trip. It is the only writer
// of recordings for the live session.
func (c *Controller) runCycle(ctx context.Context, sess *models.Session) {
	if !c.admitting(sess) {
		return
	}

	seg, err := c.source.Capture(ctx, c.cfg.CaptureDuration)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[SESSION] capture failed: %v", err)
		}
		return
	}

	if !c.monitor.IsOnline() {
		c.queueSegment(sess, seg)
		return
	}

	resp, err := c.recognizer.Recognize(ctx, c.buildRequest(sess, seg))

	// Re-check admission after the round trip: a Stop during the call means
	// this result is discarded, whatever it was. The index is snapshotted
	// under the same lock so teardown cannot pull it out from under us.
	c.mu.Lock()
	admitted := c.state == StateRecording && c.current != nil && c.current.ID == sess.ID
	index := c.index
	c.mu.Unlock()
	if !admitted {
		log.Printf("[SESSION] session ending, discarding capture result")
		return
	}

	if err != nil {
		if recognition.IsTransport(err) {
			log.Printf("[SESSION] transport failure, going offline: %v", err)
			c.monitor.SetOnline(false)
			c.queueSegment(sess, seg)
		} else {
			// Service answered with an error: the network is provably up, so
			// this capture is treated as a no-match and never queued.
			log.Printf("[RECOGNIZE] service error, treating as no match: %v", err)
		}
		return
	}

	if !resp.Matched() {
		log.Printf("[RECOGNIZE] no track identified this cycle")
		return
	}

	track := resp.Identification()
	if !index.IsNew(track.Title) {
		log.Printf("[SESSION] track already identified this session: %s", track.Title)
		return
	}

	log.Printf("[SESSION] identified %q by %q (confidence %.2f)", track.Title, track.Artist, track.Confidence)

	c.mu.Lock()
	c.tracks = append(c.tracks, *track)
	c.mu.Unlock()

	// The raw payload has served its purpose once recognized.
	rec := models.NewRecording(sess.ID, "", seg.SampleRate, seg.Channels)
	rec.Status = models.RecordingSynced
	rec.Result = track
	if err := c.store.AppendRecording(context.Background(), rec); err != nil {
		log.Printf("[STORE] failed to persist identified track: %v", err)
		return
	}

	c.dispatchNotification(sess, rec, track)
}

// queueSegment persists a capture for later reconciliation. Once admitted the
// write runs on a background context so teardown cannot interrupt a durable
// append midway.
func (c *Controller) queueSegment(sess *models.Session, seg *capture.Segment) {
	if !c.admitting(sess) {
		log.Printf("[SESSION] session ending, skipping offline save")
		return
	}

	rec := models.NewRecording(sess.ID, seg.Payload, seg.SampleRate, seg.Channels)
	if err := c.store.AppendRecording(context.Background(), rec); err != nil {
		log.Printf("[STORE] failed to queue offline capture: %v", err)
		return
	}
	log.Printf("[SESSION] offline, queued capture %s for later sync", rec.ID)
}

func (c *Controller) buildRequest(sess *models.Session, seg *capture.Segment) recognition.Request {
	req := recognition.Request{
		AudioData:  seg.Payload,
		SampleRate: seg.SampleRate,
		Channels:   seg.Channels,
		DJID:       sess.OwnerID,
		DJName:     sess.DJName,
	}
	if sess.Venue != nil {
		req.Venue = sess.Venue.Name
		req.City = sess.Venue.City
		req.Country = sess.Venue.Country
	}
	return req
}

// dispatchNotification fires the producer notification at most once per
// track, gated by venue qualification. The durable marker is only set after
// a successful dispatch so a failure is retried during reconciliation.
func (c *Controller) dispatchNotification(sess *models.Session, rec *models.Recording, track *models.TrackIdentification) {
	if !sess.QualifyingVenue() {
		log.Printf("[NOTIFY] skipping %q: venue does not qualify", track.Title)
		return
	}
	if !track.Notifiable() {
		log.Printf("[NOTIFY] skipping %q: no producer or track id", track.Title)
		return
	}

	payload := notify.Payload{
		TrackID:     track.ExternalTrackID,
		ProducerID:  track.ProducerID,
		TrackTitle:  track.Title,
		ArtistName:  track.Artist,
		DJName:      sess.DJName,
		PerformedAt: track.RecognizedAt.Format(time.RFC3339),
		Venue:       sess.Venue.Name,
		City:        sess.Venue.City,
		Country:     sess.Venue.Country,
		ArtworkURL:  track.CoverArtURL,
	}

	if err := c.notifier.Dispatch(context.Background(), payload); err != nil {
		log.Printf("[NOTIFY] dispatch failed for %q: %v", track.Title, err)
		return
	}
	if err := c.store.MarkNotified(context.Background(), rec.ID); err != nil {
		log.Printf("[STORE] failed to mark %s notified: %v", rec.ID, err)
	}
}
