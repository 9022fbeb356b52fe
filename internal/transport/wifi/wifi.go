// Package wifi implements the C3 WifiTransport: an SSDP advertiser and
// listener over IPv4 multicast, grounded on the teacher's mDNS multicast
// setup (cmd/mdns_test/main.go) but simplified to SSDP's plain
// NOTIFY-over-UDP model instead of full DNS-message framing.
package wifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"go4.org/netipx"
	"golang.org/x/net/ipv4"

	"github.com/thaligo/thali/internal/logging"
	"github.com/thaligo/thali/internal/registry"
)

var (
	ssdpMulticastAddr = &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}

	// nonCacheableRanges excludes loopback and link-local addresses from the
	// Wi-Fi transport's cache: a Wi-Fi peer's discovered host is always a
	// routable LAN address, unlike native (Bluetooth/MPCF) peers which are
	// loopback-bridged on Android.
	nonCacheableRanges = buildNonCacheableRanges()
)

func buildNonCacheableRanges() *netipx.IPSet {
	var b netipx.IPSetBuilder
	b.AddPrefix(netip.MustParsePrefix("127.0.0.0/8"))
	b.AddPrefix(netip.MustParsePrefix("169.254.0.0/16"))
	b.AddPrefix(netip.MustParsePrefix("::1/128"))
	b.AddPrefix(netip.MustParsePrefix("fe80::/10"))
	set, err := b.IPSet()
	if err != nil {
		panic("wifi: build non-cacheable ip set: " + err.Error())
	}
	return set
}

// Transport runs the SSDP advertiser/listener pair. Zero value is not
// usable; construct with New.
type Transport struct {
	peerIdentifier string
	generation     atomic.Uint32
	interval       time.Duration

	out chan registry.RawPeerEvent

	log *slog.Logger

	mu        sync.Mutex
	advCancel context.CancelFunc
	lisCancel context.CancelFunc
	advConn   *net.UDPConn
	lisConn   *ipv4.PacketConn
}

// New builds a Transport. peerIdentifier is this node's own advertised id;
// interval is the SSDP re-advertisement period (SSDPAdvertisementInterval).
func New(peerIdentifier string, interval time.Duration) *Transport {
	t := &Transport{
		peerIdentifier: peerIdentifier,
		interval:       interval,
		out:            make(chan registry.RawPeerEvent, 32),
	}
	t.log = logging.For(t)
	return t
}

// Events delivers RawPeerEvent{ConnectionType: registry.TCPNative}.
func (t *Transport) Events() <-chan registry.RawPeerEvent { return t.out }

// StartAdvertising begins periodic SSDP NOTIFY broadcasts carrying
// `peerIdentifier:generation` as the USN. Idempotent: a second call while
// already advertising is a no-op.
func (t *Transport) StartAdvertising(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advCancel != nil {
		return nil
	}

	conn, err := net.DialUDP("udp4", nil, ssdpMulticastAddr)
	if err != nil {
		return fmt.Errorf("wifi: dial ssdp multicast: %w", err)
	}
	t.advConn = conn

	advCtx, cancel := context.WithCancel(ctx)
	t.advCancel = cancel

	go t.advertiseLoop(advCtx, conn)
	return nil
}

// StopAdvertising stops the advertise loop. Idempotent.
func (t *Transport) StopAdvertising() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advCancel == nil {
		return nil
	}
	t.advCancel()
	t.advCancel = nil
	if t.advConn != nil {
		t.advConn.Close()
		t.advConn = nil
	}
	return nil
}

func (t *Transport) advertiseLoop(ctx context.Context, conn *net.UDPConn) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.sendNotify(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendNotify(conn)
		}
	}
}

func (t *Transport) sendNotify(conn *net.UDPConn) {
	usn := usnOf(t.peerIdentifier, t.generation.Load())
	notify := fmt.Sprintf("NOTIFY * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nNTS: ssdp:alive\r\nUSN: %s\r\n\r\n", usn)
	if _, err := conn.Write([]byte(notify)); err != nil {
		t.log.Warn("wifi: ssdp notify failed", "err", err)
	}
}

// BumpGeneration advances this node's own advertised generation, e.g. after
// a local listener restart.
func (t *Transport) BumpGeneration() {
	t.generation.Add(1)
}

// StartListening begins listening for peer SSDP advertisements, emitting a
// RawPeerEvent on each one. Idempotent.
func (t *Transport) StartListening(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lisCancel != nil {
		return nil
	}

	pconn, err := reusePortListenConfig.ListenPacket(ctx, "udp4", "0.0.0.0:1900")
	if err != nil {
		return fmt.Errorf("wifi: listen ssdp: %w", err)
	}
	pc := ipv4.NewPacketConn(pconn)

	ifaces, err := net.Interfaces()
	if err != nil {
		pconn.Close()
		return fmt.Errorf("wifi: list interfaces: %w", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		if err := pc.JoinGroup(&ifi, &net.UDPAddr{IP: ssdpMulticastAddr.IP}); err != nil &&
			!errors.Is(err, syscall.EAFNOSUPPORT) {
			t.log.Warn("wifi: ssdp join group failed", "iface", ifi.Name, "err", err)
		}
	}

	t.lisConn = pc
	lisCtx, cancel := context.WithCancel(ctx)
	t.lisCancel = cancel

	go t.listenLoop(lisCtx, pc)
	return nil
}

// StopListening stops the listen loop. Idempotent.
func (t *Transport) StopListening() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lisCancel == nil {
		return nil
	}
	t.lisCancel()
	t.lisCancel = nil
	if t.lisConn != nil {
		t.lisConn.Close()
		t.lisConn = nil
	}
	return nil
}

func (t *Transport) listenLoop(ctx context.Context, pc *ipv4.PacketConn) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("wifi: ssdp read failed", "err", err)
			continue
		}

		peerID, gen, ok := parseNotify(buf[:n])
		if !ok || peerID == t.peerIdentifier {
			continue
		}

		udpAddr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		if addr, ok := netip.AddrFromSlice(udpAddr.IP); ok && nonCacheableRanges.Contains(addr.Unmap()) {
			t.log.Warn("wifi: ignoring advertisement from loopback/link-local address", "peer", peerID, "addr", addr)
			continue
		}

		ev := registry.RawPeerEvent{
			PeerID:         peerID,
			Generation:     gen,
			Available:      true,
			ConnectionType: registry.TCPNative,
		}
		ev.HostAddress = gonull.NewNullable(udpAddr.IP.String())
		ev.PortNumber = gonull.NewNullable(uint16(udpAddr.Port))

		select {
		case t.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func usnOf(peerIdentifier string, generation uint32) string {
	return fmt.Sprintf("%s:%d", peerIdentifier, generation)
}

func parseNotify(data []byte) (peerIdentifier string, generation uint32, ok bool) {
	lines := strings.Split(string(data), "\r\n")
	for _, line := range lines {
		if !strings.HasPrefix(line, "USN:") {
			continue
		}
		usn := strings.TrimSpace(strings.TrimPrefix(line, "USN:"))
		idx := strings.LastIndex(usn, ":")
		if idx < 0 {
			return "", 0, false
		}
		gen, err := strconv.ParseUint(usn[idx+1:], 10, 32)
		if err != nil {
			return "", 0, false
		}
		return usn[:idx], uint32(gen), true
	}
	return "", 0, false
}
