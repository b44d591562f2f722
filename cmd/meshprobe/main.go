// Command meshprobe joins a session as one participant, negotiates real
// WebRTC peer connections with everyone else in it and logs the mesh it ends
// up with. It is meant for smoke-testing a deployed signaling server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/hub"
	"peacepad-signaling/internal/mesh"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "signaling websocket endpoint")
		token    = flag.String("token", os.Getenv("MESHPROBE_TOKEN"), "JWT identifying this participant")
		self     = flag.String("id", "meshprobe", "participant id carried by the token, used for logging")
		code     = flag.String("code", "", "six-digit session code to join")
		ice      = flag.String("ice", "stun:stun.l.google.com:19302", "comma-separated ICE server URLs")
		delay    = flag.Duration("media-delay", 0, "wait this long after joining before declaring media ready")
		interval = flag.Duration("report", 5*time.Second, "how often to log the mesh")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithFields(logrus.Fields{"component": "meshprobe", "self": *self})
	if *code == "" {
		log.Fatal("-code is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := mesh.NewPionFactory(splitURLs(*ice)...)
	if err != nil {
		log.WithError(err).Fatal("Failed to build peer connection factory")
	}
	client, err := mesh.Dial(ctx, *url, *token)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to signaling server")
	}
	defer client.Close()

	coord := mesh.NewCoordinator(*self, factory, client)
	defer coord.Close()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- client.Listen(ctx, func(env hub.Envelope) {
			if err := coord.HandleEnvelope(ctx, env); err != nil {
				log.WithError(err).WithFields(logrus.Fields{"type": env.Type, "from": env.From}).Warn("Failed to apply envelope")
			}
		})
	}()

	if err := coord.Join(*code); err != nil {
		log.WithError(err).Fatal("Failed to send join-session")
	}
	log.WithField("session_code", *code).Info("Joined session")

	select {
	case <-time.After(*delay):
	case <-ctx.Done():
		return
	}
	if err := coord.MediaReady(ctx); err != nil {
		log.WithError(err).Warn("Some queued peers failed to connect")
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			peers, offers := coord.Pending()
			log.WithFields(logrus.Fields{
				"peers":          coord.Peers(),
				"pending_peers":  peers,
				"pending_offers": offers,
			}).Info("Mesh state")
		case err := <-listenErr:
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Signaling connection lost")
			}
			return
		case <-ctx.Done():
			if err := coord.Leave(); err != nil {
				log.WithError(err).Debug("Leave not sent")
			}
			return
		}
	}
}

func splitURLs(raw string) []string {
	var out []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
