// Package retention runs the periodic housekeeping of sessions and proofs.
package retention

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("retention")

// SessionCleaner persists lazy expiry and drops terminal sessions older than retention.
type SessionCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (expired int, deleted int, err error)
}

// ProofCleaner purges unused proofs.
type ProofCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

type Config struct {
	SessionInterval  time.Duration
	SessionRetention time.Duration
	ProofInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionInterval:  time.Hour,
		SessionRetention: 30 * 24 * time.Hour,
		ProofInterval:    time.Hour,
	}
}

type Stats struct {
	SessionsExpired int
	SessionsDeleted int
	ProofsPurged    int
}

// Cleaner handles periodic cleanup of sessions and proofs.
type Cleaner struct {
	sessions SessionCleaner
	proofs   ProofCleaner
	cfg      Config
}

func NewCleaner(sessions SessionCleaner, proofs ProofCleaner, cfg Config) *Cleaner {
	def := DefaultConfig()
	if cfg.SessionInterval <= 0 {
		cfg.SessionInterval = def.SessionInterval
	}
	if cfg.ProofInterval <= 0 {
		cfg.ProofInterval = def.ProofInterval
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = def.SessionRetention
	}
	return &Cleaner{sessions: sessions, proofs: proofs, cfg: cfg}
}

// Run starts the cleanup loop. Nothing runs at startup; the first pass
// happens after one interval.
func (c *Cleaner) Run(ctx context.Context) {
	sessionTicker := time.NewTicker(c.cfg.SessionInterval)
	defer sessionTicker.Stop()
	proofTicker := time.NewTicker(c.cfg.ProofInterval)
	defer proofTicker.Stop()

	log.Infof("cleanup scheduled, sessions every %v (keeping %v), proofs every %v",
		c.cfg.SessionInterval, c.cfg.SessionRetention, c.cfg.ProofInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sessionTicker.C:
			if _, _, err := c.cleanSessions(ctx); err != nil {
				log.Errorf("session cleanup: %v", err)
			}
		case <-proofTicker.C:
			if _, err := c.cleanProofs(ctx); err != nil {
				log.Errorf("proof cleanup: %v", err)
			}
		}
	}
}

// RunOnce does one full pass. Both parts run even if the first fails; the
// first error is returned.
func (c *Cleaner) RunOnce(ctx context.Context) (Stats, error) {
	var st Stats
	expired, deleted, serr := c.cleanSessions(ctx)
	st.SessionsExpired, st.SessionsDeleted = expired, deleted

	purged, perr := c.cleanProofs(ctx)
	st.ProofsPurged = purged
	if serr != nil {
		return st, serr
	}
	return st, perr
}

func (c *Cleaner) cleanSessions(ctx context.Context) (int, int, error) {
	if c.sessions == nil {
		return 0, 0, nil
	}
	expired, deleted, err := c.sessions.Cleanup(ctx, c.cfg.SessionRetention)
	if err != nil {
		return expired, deleted, err
	}
	log.Debugf("session cleanup: %d expired, %d deleted", expired, deleted)
	return expired, deleted, nil
}

func (c *Cleaner) cleanProofs(ctx context.Context) (int, error) {
	if c.proofs == nil {
		return 0, nil
	}
	n, err := c.proofs.Cleanup(ctx)
	if err != nil {
		return 0, err
	}
	log.Debugf("proof cleanup: %d purged", n)
	return n, nil
}
