// Package sender implements the C6 NotificationSender: it owns the
// currently published beacon stream and the PSK tables it implies,
// publishing a fresh snapshot on every rotation instead of the cyclic
// Manager<->Sender<->middleware ownership spec.md §9 flags (see
// DESIGN.md's internal/notify/sender section).
package sender

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/exp/maps"

	"github.com/thaligo/thali/internal/acl"
	"github.com/thaligo/thali/internal/beacon"
	"github.com/thaligo/thali/internal/ifaces"
	"github.com/thaligo/thali/internal/key"
	"github.com/thaligo/thali/internal/logging"
)

const pskSecretLen = 16

// snapshot is the immutable published state; every rotation builds a new
// one and swaps it in atomically, so readers never observe a torn view.
type snapshot struct {
	beaconStream  []byte
	idToSecret    map[string][]byte
	idToPublicKey map[string]*key.Public
}

// Sender is the C6 NotificationSender.
type Sender struct {
	local key.Private
	codec beacon.Codec
	psk   ifaces.PSKServer
	rotateAfter time.Duration

	current atomic.Pointer[snapshot]

	mu        sync.Mutex
	timer     *time.Timer
	recipients []key.Public
	expiration time.Duration
}

// New builds a Sender. rotateAfter is BeaconMillisecondsToExpire: how long
// before a beacon stream's expiry the Sender schedules a replacement.
func New(local key.Private, codec beacon.Codec, psk ifaces.PSKServer, rotateAfter time.Duration) *Sender {
	return &Sender{local: local, codec: codec, psk: psk, rotateAfter: rotateAfter}
}

// SetBeaconKeys generates a fresh beacon stream for recipients, rebuilds
// the PSK tables, publishes both, and schedules the next rotation.
func (s *Sender) SetBeaconKeys(recipients []key.Public, expiration time.Duration) error {
	s.mu.Lock()
	s.recipients = recipients
	s.expiration = expiration
	s.mu.Unlock()

	if err := s.rotate(); err != nil {
		return err
	}

	s.scheduleRotation(expiration)
	return nil
}

func (s *Sender) rotate() error {
	s.mu.Lock()
	recipients := s.recipients
	expiration := s.expiration
	s.mu.Unlock()

	stream, err := s.codec.Generate(recipients, s.local, int64(expiration.Seconds()))
	if err != nil {
		return fmt.Errorf("sender: generate beacon stream: %w", err)
	}

	idToSecret := map[string][]byte{
		acl.BeaconPSKIdentity: acl.BeaconPSKSecret,
	}
	idToPublicKey := map[string]*key.Public{}

	for _, recipient := range recipients {
		pskID, secret, err := derivePSK(s.local, recipient)
		if err != nil {
			return fmt.Errorf("sender: derive psk for recipient: %w", err)
		}
		idToSecret[pskID] = secret
		idToPublicKey[pskID] = &recipient
	}

	s.current.Store(&snapshot{
		beaconStream:  stream,
		idToSecret:    idToSecret,
		idToPublicKey: idToPublicKey,
	})

	if s.psk != nil {
		s.psk.SetPSKTable(idToSecret)
	}
	return nil
}

func (s *Sender) scheduleRotation(expiration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	delay := expiration - s.rotateAfter
	if delay < 0 {
		delay = 0
	}

	s.timer = time.AfterFunc(delay, func() {
		if err := s.rotate(); err != nil {
			logging.For(s).Error("sender: beacon rotation failed", "err", err)
			return
		}
		s.scheduleRotation(expiration)
	})
}

// Stop cancels any scheduled rotation.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// BeaconStream returns the currently published stream, served at
// GET /NotificationBeacons.
func (s *Sender) BeaconStream(context.Context) ([]byte, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, nil
	}
	return snap.beaconStream, nil
}

// Lookup implements acl.Resolver's PSK-identity lookup half, over the
// Sender's current snapshot.
func (s *Sender) Lookup(id string) (secret []byte, pub *key.Public, ok bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, nil, false
	}
	secret, ok = snap.idToSecret[id]
	if !ok {
		return nil, nil, false
	}
	return secret, snap.idToPublicKey[id], true
}

// IdToSecret returns a defensive copy of the current PSK secret table.
func (s *Sender) IdToSecret() map[string][]byte {
	snap := s.current.Load()
	if snap == nil {
		return map[string][]byte{}
	}
	return maps.Clone(snap.idToSecret)
}

// IdToPublicKey returns a defensive copy of the current PSK identity to
// public-key table.
func (s *Sender) IdToPublicKey() map[string]*key.Public {
	snap := s.current.Load()
	if snap == nil {
		return map[string]*key.Public{}
	}
	return maps.Clone(snap.idToPublicKey)
}

// derivePSK derives the (pskId, secret) pair NotificationSender publishes
// for a given recipient: pskId = base64(hashOf(recipient)), secret =
// HKDF-derived from the ECDH shared secret between local and recipient.
func derivePSK(local key.Private, recipient key.Public) (pskID string, secret []byte, err error) {
	h := recipient.Hash()
	pskID = base64.StdEncoding.EncodeToString(h[:])

	shared, err := local.ECDH(recipient)
	if err != nil {
		return "", nil, err
	}

	secret = make([]byte, pskSecretLen)
	kdf := hkdf.New(sha256.New, shared, nil, []byte("thali-notification-psk"))
	if _, err := kdf.Read(secret); err != nil {
		return "", nil, err
	}
	return pskID, secret, nil
}
