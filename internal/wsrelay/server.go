package wsrelay

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Server wires together everything a node needs to accept client
// connections: the upgrade validation, the registry, and (when clustered)
// the directory client and peer forwarder. It implements http.Handler and
// is meant to be mounted at the single "/chat" path a node serves.
type Server struct {
	Registry    *Registry
	Directory   Directory
	Forwarder   Forwarder
	ClusterMode bool
	Host        string
	PeerAddr    string
	Logger      zerolog.Logger
}

// ServeHTTP runs the handshake; on success it hijacks the connection and
// runs the session loop to completion on this goroutine, matching
// net/http's one-goroutine-per-request model. On failure the handshake
// itself has already written the 400 response.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := upgrade(w, r, UpgradeConfig{Host: srv.Host})
	if err != nil {
		srv.Logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("handshake rejected")
		return
	}

	sess := &Session{
		conn:        res.conn,
		reader:      res.rw.Reader,
		writer:      res.rw.Writer,
		userID:      res.userID,
		inbound:     make(chan []byte, inboundChannelCapacity),
		registry:    srv.Registry,
		directory:   srv.Directory,
		forwarder:   srv.Forwarder,
		peerAddr:    srv.PeerAddr,
		clusterMode: srv.ClusterMode,
		logger:      srv.Logger.With().Str("user", res.userID).Logger(),
	}
	sess.logger.Info().Str("remote", r.RemoteAddr).Msg("session established")
	sess.Run(context.Background())
}

// InboundChannel returns the send end of userID's inbound channel, for use
// by the cluster fabric's peer listener when delivering a forwarded frame.
// It is a thin pass-through to the registry, kept on Server so the cluster
// package only needs one dependency to reach local sessions.
func (srv *Server) InboundChannel(userID string) (chan<- []byte, bool) {
	return srv.Registry.Lookup(userID)
}
