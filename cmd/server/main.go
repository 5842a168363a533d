package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/clubsonar/setlistd/internal/api"
	"github.com/clubsonar/setlistd/internal/capture"
	"github.com/clubsonar/setlistd/internal/netmon"
	"github.com/clubsonar/setlistd/internal/notify"
	"github.com/clubsonar/setlistd/internal/recognition"
	"github.com/clubsonar/setlistd/internal/session"
	"github.com/clubsonar/setlistd/internal/store"
	"github.com/clubsonar/setlistd/internal/syncer"
	"github.com/clubsonar/setlistd/internal/venue"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./setlistd.db"
	}

	recognitionURL := os.Getenv("RECOGNITION_URL")
	if recognitionURL == "" {
		log.Fatal("RECOGNITION_URL is required")
	}

	notifyURL := os.Getenv("NOTIFY_URL")
	if notifyURL == "" {
		log.Fatal("NOTIFY_URL is required")
	}

	cycleInterval := durationEnv("CYCLE_INTERVAL", 10*time.Second)
	captureDuration := durationEnv("CAPTURE_DURATION", 6*time.Second)
	maxDuration := durationEnv("MAX_SESSION_DURATION", 5*time.Hour)
	requestTimeout := durationEnv("REQUEST_TIMEOUT", 30*time.Second)
	netHold := durationEnv("NETWORK_HOLD", 5*time.Second)
	retention := durationEnv("RETENTION", 7*24*time.Hour)

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}
	defer st.Close()

	var source capture.Source
	captureDir := os.Getenv("CAPTURE_DIR")
	if captureDir != "" {
		source, err = capture.NewWAVDirSource(captureDir)
		if err != nil {
			log.Fatal("Failed to initialize capture source:", err)
		}
	} else {
		log.Printf("CAPTURE_DIR not set, using synthetic capture source")
		source = capture.NewToneSource()
	}

	monitor := netmon.New(netHold)
	recognizer := recognition.NewClient(recognitionURL, requestTimeout)
	notifier := notify.NewClient(notifyURL, requestTimeout)

	controller := session.NewController(st, source, recognizer, notifier, monitor, session.Config{
		CycleInterval:   cycleInterval,
		CaptureDuration: captureDuration,
		MaxDuration:     maxDuration,
	})

	reconciler := syncer.New(st, recognizer, notifier, monitor, syncer.Config{
		Retention: retention,
	})
	unsubscribe := reconciler.Watch()
	defer unsubscribe()

	app := &api.App{
		Controller: controller,
		Store:      st,
		Reconciler: reconciler,
		Monitor:    monitor,
		Policy:     venue.DefaultPolicy(),
	}
	router := api.NewRouter(app)

	log.Printf("Server starting on port %s", port)
	log.Printf("Database path: %s", dbPath)
	log.Printf("Recognition endpoint: %s", recognitionURL)
	log.Printf("Cycle interval: %s, capture duration: %s", cycleInterval, captureDuration)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return d
}
