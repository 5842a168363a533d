// Package syncer drains the offline queue once connectivity returns. It
// replays queued captures through the same recognition path as live cycles
// and is idempotent under retries: a run that finds nothing pending does
// nothing, a partially failed session stays pending for the next pass, and
// durable notified markers keep replays from re-notifying tracks that were
// already acted on live.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clubsonar/setlistd/internal/dedup"
	"github.com/clubsonar/setlistd/internal/models"
	"github.com/clubsonar/setlistd/internal/netmon"
	"github.com/clubsonar/setlistd/internal/notify"
	"github.com/clubsonar/setlistd/internal/recognition"
	"github.com/clubsonar/setlistd/internal/store"
)

const defaultRetention = 7 * 24 * time.Hour

type Recognizer interface {
	Recognize(ctx context.Context, req recognition.Request) (*recognition.Response, error)
}

type Config struct {
	Retention time.Duration // how long synced sessions are kept
}

type Reconciler struct {
	store      *store.Store
	recognizer Recognizer
	notifier   notify.Dispatcher
	monitor    *netmon.Monitor
	retention  time.Duration

	mu      sync.Mutex
	running bool
}

func New(st *store.Store, recognizer Recognizer, notifier notify.Dispatcher, monitor *netmon.Monitor, cfg Config) *Reconciler {
	if cfg.Retention == 0 {
		cfg.Retention = defaultRetention
	}
	return &Reconciler{
		store:      st,
		recognizer: recognizer,
		notifier:   notifier,
		monitor:    monitor,
		retention:  cfg.Retention,
	}
}

// Watch subscribes to the network monitor and kicks a sync pass whenever
// connectivity is restored. Returns the unsubscribe function.
func (r *Reconciler) Watch() func() {
	return r.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		log.Printf("[SYNC] connectivity restored, checking for pending sessions")
		go r.SyncPending(context.Background())
	})
}

// SyncPending drains every pending_sync session in arrival order. At most
// one run at a time: a concurrent caller observes (0, 0, nil) instead of
// blocking.
//
// The run is optimistic about connectivity: a pass started while the monitor
// is marked offline still attempts the first replay, and any response that
// reaches the service (match, no-match or service error) promotes the monitor
// back online. A genuinely dead link costs one transport failure and aborts
// the run, which is the self-correcting bias the monitor documents.
func (r *Reconciler) SyncPending(ctx context.Context) (synced, failed int, results []models.TrackIdentification) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Printf("[SYNC] sync already in progress")
		return 0, 0, nil
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if !r.monitor.IsOnline() {
		log.Printf("[SYNC] marked offline, attempting replay anyway")
	}

	sessions, err := r.store.ListPendingSessions(ctx)
	if err != nil {
		log.Printf("[SYNC] failed to list pending sessions: %v", err)
		return 0, 0, nil
	}
	if len(sessions) == 0 {
		return 0, 0, nil
	}

	log.Printf("[SYNC] starting sync for %d session(s)", len(sessions))

	for _, sess := range sessions {
		s, f, tracks, offline := r.syncSession(ctx, sess)
		synced += s
		failed += f
		results = append(results, tracks...)
		if offline {
			log.Printf("[SYNC] went offline mid-run, aborting")
			break
		}
	}

	if purged, err := r.store.PurgeSyncedBefore(ctx, time.Now().Add(-r.retention)); err != nil {
		log.Printf("[SYNC] retention purge failed: %v", err)
	} else if purged > 0 {
		log.Printf("[SYNC] purged %d old synced session(s)", purged)
	}

	log.Printf("[SYNC] sync complete: %d synced, %d failed", synced, failed)
	return synced, failed, results
}

// syncSession replays one session's pending recordings. The dedup index is
// rebuilt fresh for the session, seeded with the tracks it already notified
// live, so replay surfaces only genuinely new identifications.
func (r *Reconciler) syncSession(ctx context.Context, sess *models.Session) (synced, failed int, results []models.TrackIdentification, offline bool) {
	if err := r.store.UpdateSessionStatus(ctx, sess.ID, models.SessionSyncing); err != nil {
		log.Printf("[SYNC] failed to mark session %s syncing: %v", sess.ID, err)
		return 0, 1, nil, false
	}

	index := dedup.New()
	notified, err := r.store.NotifiedTitles(ctx, sess.ID)
	if err != nil {
		log.Printf("[SYNC] failed to load notified titles for %s: %v", sess.ID, err)
	}
	index.Seed(notified...)

	sessionFailed := false
	notifyPending := false

	for i := range sess.Recordings {
		rec := &sess.Recordings[i]
		if rec.Status != models.RecordingPending && rec.Status != models.RecordingFailed {
			// Already replayed or identified live. A result whose notification
			// never went out is re-attempted here; the index keeps a title
			// from being dispatched twice within the run.
			if rec.Result != nil && !rec.Notified && index.IsNew(rec.Result.Title) {
				if !r.dispatchNotification(ctx, sess, rec.ID, rec.Result) {
					notifyPending = true
				}
			}
			continue
		}

		resp, err := r.recognizer.Recognize(ctx, r.buildRequest(sess, rec))
		if err != nil {
			if recognition.IsTransport(err) {
				log.Printf("[SYNC] transport failure replaying %s: %v", rec.ID, err)
				r.monitor.SetOnline(false)
				failed++
				sessionFailed = true
				offline = true
				break
			}
			// Service error with the network provably up: no-match, done with
			// this capture for good.
			r.monitor.ConfirmOnline()
			log.Printf("[SYNC] service error for %s, treating as no match: %v", rec.ID, err)
			if err := r.store.UpdateRecordingStatus(ctx, rec.ID, models.RecordingSynced, nil); err != nil {
				log.Printf("[STORE] failed to update recording %s: %v", rec.ID, err)
				sessionFailed = true
				failed++
				continue
			}
			synced++
			continue
		}

		r.monitor.ConfirmOnline()

		if !resp.Matched() {
			if err := r.store.UpdateRecordingStatus(ctx, rec.ID, models.RecordingSynced, nil); err != nil {
				log.Printf("[STORE] failed to update recording %s: %v", rec.ID, err)
				sessionFailed = true
				failed++
				continue
			}
			synced++
			continue
		}

		track := resp.Identification()
		if err := r.store.UpdateRecordingStatus(ctx, rec.ID, models.RecordingSynced, track); err != nil {
			log.Printf("[STORE] failed to update recording %s: %v", rec.ID, err)
			sessionFailed = true
			failed++
			continue
		}
		synced++

		if !index.IsNew(track.Title) {
			log.Printf("[SYNC] %q already identified for session %s", track.Title, sess.ID)
			continue
		}

		log.Printf("[SYNC] identified %q by %q for session %s", track.Title, track.Artist, sess.ID)
		results = append(results, *track)
		if !r.dispatchNotification(ctx, sess, rec.ID, track) {
			notifyPending = true
		}
	}

	if sessionFailed || notifyPending {
		// Leave the session for a future retry; the recordings that did sync
		// keep their status and are skipped next time, and an undelivered
		// notification is re-attempted because its marker is still unset.
		if err := r.store.UpdateSessionStatus(ctx, sess.ID, models.SessionPendingSync); err != nil {
			log.Printf("[STORE] failed to return session %s to pending_sync: %v", sess.ID, err)
		}
		return synced, failed, results, offline
	}

	if err := r.store.MarkSessionSynced(ctx, sess.ID); err != nil {
		log.Printf("[STORE] failed to mark session %s synced: %v", sess.ID, err)
	}
	return synced, failed, results, offline
}

func (r *Reconciler) buildRequest(sess *models.Session, rec *models.Recording) recognition.Request {
	req := recognition.Request{
		AudioData:  rec.Payload,
		SampleRate: rec.SampleRate,
		Channels:   rec.Channels,
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

// dispatchNotification fires the producer notification for one identified
// track. It reports false only when a dispatch was attempted and failed, so
// the caller knows the session cannot settle yet; tracks the gates skip are
// done for good.
func (r *Reconciler) dispatchNotification(ctx context.Context, sess *models.Session, recID string, track *models.TrackIdentification) bool {
	if !sess.QualifyingVenue() {
		log.Printf("[NOTIFY] skipping %q: venue does not qualify", track.Title)
		return true
	}
	if !track.Notifiable() {
		log.Printf("[NOTIFY] skipping %q: no producer or track id", track.Title)
		return true
	}

	performedAt := track.RecognizedAt
	if sess.EndTime != nil {
		performedAt = *sess.EndTime
	}

	payload := notify.Payload{
		TrackID:     track.ExternalTrackID,
		ProducerID:  track.ProducerID,
		TrackTitle:  track.Title,
		ArtistName:  track.Artist,
		DJName:      sess.DJName,
		PerformedAt: performedAt.Format(time.RFC3339),
		Venue:       sess.Venue.Name,
		City:        sess.Venue.City,
		Country:     sess.Venue.Country,
		ArtworkURL:  track.CoverArtURL,
	}

	if err := r.notifier.Dispatch(ctx, payload); err != nil {
		log.Printf("[NOTIFY] dispatch failed for %q: %v", track.Title, err)
		return false
	}
	if err := r.store.MarkNotified(ctx, recID); err != nil {
		log.Printf("[STORE] failed to mark %s notified: %v", recID, err)
	}
	return true
}
