package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultBrowseInterval is the length of one browse round
	DefaultBrowseInterval = 15 * time.Second

	// DefaultLostAfter is how many consecutive rounds a service may go
	// unanswered before it is reported lost
	DefaultLostAfter = 2
)

// Resolver turns an unresolved reference into one carrying host and port.
// Implementations need not be safe for overlapping calls; callers
// serialize them.
type Resolver interface {
	Resolve(ctx context.Context, ref ServiceReference) (ServiceReference, error)
}

// Zeroconf is an mDNS Browser and Resolver built on grandcat/zeroconf.
//
// zeroconf reports each instance only once per browse session and does not
// surface goodbye packets, so browsing runs in rounds of BrowseInterval.
// A service is Found the first time it answers and Lost after it has been
// silent for LostAfter whole rounds.
type Zeroconf struct {
	// Domain is the browse domain (default "local.")
	Domain string

	// BrowseInterval is the length of each browse round
	BrowseInterval time.Duration

	// LostAfter is the number of silent rounds before a service is lost
	LostAfter int

	// Interfaces restricts multicast to these interfaces (nil = all)
	Interfaces []net.Interface

	// IPv4Only limits queries to IPv4 multicast
	IPv4Only bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewZeroconf creates an mDNS browser with default settings
func NewZeroconf() *Zeroconf {
	return &Zeroconf{
		Domain:         ServiceDomain,
		BrowseInterval: DefaultBrowseInterval,
		LostAfter:      DefaultLostAfter,
	}
}

func (z *Zeroconf) domain() string {
	if z.Domain == "" {
		return ServiceDomain
	}
	return z.Domain
}

func (z *Zeroconf) interval() time.Duration {
	if z.BrowseInterval <= 0 {
		return DefaultBrowseInterval
	}
	return z.BrowseInterval
}

func (z *Zeroconf) lostAfter() int {
	if z.LostAfter <= 0 {
		return DefaultLostAfter
	}
	return z.LostAfter
}

func (z *Zeroconf) newResolver() (*zeroconf.Resolver, error) {
	var opts []zeroconf.ClientOption
	if len(z.Interfaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(z.Interfaces))
	}
	if z.IPv4Only {
		opts = append(opts, zeroconf.SelectIPTraffic(zeroconf.IPv4))
	}
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver, nil
}

// Start implements Browser
func (z *Zeroconf) Start(serviceType string, l Listener) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.cancel != nil {
		return &DiscoveryError{Op: OpStart, ServiceType: serviceType, Code: FailureAlreadyActive}
	}

	ctx, cancel := context.WithCancel(context.Background())
	z.cancel = cancel
	z.done = make(chan struct{})

	go z.browseLoop(ctx, z.done, serviceType, l)
	return nil
}

// Stop implements Browser. It waits for the browse loop to exit.
func (z *Zeroconf) Stop() error {
	z.mu.Lock()
	cancel, done := z.cancel, z.done
	z.cancel = nil
	z.done = nil
	z.mu.Unlock()

	if cancel == nil {
		return ErrNotBrowsing
	}

	cancel()
	<-done
	return nil
}

func (z *Zeroconf) browseLoop(ctx context.Context, done chan struct{}, serviceType string, l Listener) {
	defer close(done)

	tracker := newPresenceTracker(z.lostAfter())

	for {
		err := z.browseRound(ctx, serviceType, l, tracker)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.BrowseFailed(err)
			return
		}

		for _, ref := range tracker.endRound() {
			l.ServiceLost(ref)
		}
	}
}

// browseRound runs one Browse session for the configured interval
func (z *Zeroconf) browseRound(ctx context.Context, serviceType string, l Listener, tracker *presenceTracker) error {
	roundCtx, cancel := context.WithTimeout(ctx, z.interval())
	defer cancel()

	resolver, err := z.newResolver()
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(roundCtx, serviceType, z.domain(), entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	// zeroconf sends without selecting on the context; keep draining
	// until it closes the channel
	defer func() {
		go func() {
			for range entries {
			}
		}()
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				<-roundCtx.Done()
				return nil
			}
			ref := referenceFromEntry(entry, serviceType, z.domain())
			if ref.Name == "" {
				continue
			}
			if entry.TTL == 0 {
				if lost, ok := tracker.forget(ref.Name); ok {
					l.ServiceLost(lost)
				}
				continue
			}
			if tracker.observe(ref) {
				l.ServiceFound(ref)
			}
		case <-roundCtx.Done():
			return nil
		}
	}
}

// Resolve implements Resolver with a one-shot mDNS lookup of the instance
func (z *Zeroconf) Resolve(ctx context.Context, ref ServiceReference) (ServiceReference, error) {
	serviceType := ref.Type
	if serviceType == "" {
		serviceType = ServiceType
	}
	domain := ref.Domain
	if domain == "" {
		domain = z.domain()
	}

	resolver, err := z.newResolver()
	if err != nil {
		return ref, &ResolveError{Name: ref.Name, Code: FailureInternalError, Err: err}
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Lookup(lookupCtx, ref.Name, serviceType, domain, entries); err != nil {
		return ref, &ResolveError{Name: ref.Name, Code: FailureInternalError, Err: err}
	}

	defer func() {
		go func() {
			for range entries {
			}
		}()
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return ref, &ResolveError{Name: ref.Name, Code: FailureInternalError, Err: ErrNoAddress}
			}
			if resolved, ok := resolveFromEntry(ref, entry); ok {
				return resolved, nil
			}
		case <-ctx.Done():
			return ref, &ResolveError{Name: ref.Name, Code: FailureInternalError, Err: ctx.Err()}
		}
	}
}

// referenceFromEntry builds the unresolved reference announced for a browse
// answer. Addresses are left to Resolve.
func referenceFromEntry(entry *zeroconf.ServiceEntry, serviceType, domain string) ServiceReference {
	if entry == nil {
		return ServiceReference{}
	}
	return ServiceReference{
		Name:   entry.Instance,
		Type:   serviceType,
		Domain: domain,
		Text:   parseText(entry.Text),
	}
}

// resolveFromEntry copies the address of a lookup answer onto ref.
// Returns false if the answer carries no address.
func resolveFromEntry(ref ServiceReference, entry *zeroconf.ServiceEntry) (ServiceReference, bool) {
	if entry == nil {
		return ref, false
	}

	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}

	// Fallback to IPv6 if no IPv4
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}

	if ip == "" {
		return ref, false
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	ref.HostName = entry.HostName
	ref.Host = ip
	ref.Port = port
	if len(entry.Text) > 0 {
		ref.Text = parseText(entry.Text)
	}
	return ref, true
}

// parseText splits TXT records in "key=value" format
func parseText(records []string) map[string]string {
	if len(records) == 0 {
		return nil
	}
	text := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			text[parts[0]] = parts[1]
		} else {
			// Key without value
			text[parts[0]] = ""
		}
	}
	return text
}

// presenceTracker decides Found/Lost across browse rounds
type presenceTracker struct {
	lostAfter int
	known     map[string]ServiceReference
	missed    map[string]int
	seen      map[string]bool
}

func newPresenceTracker(lostAfter int) *presenceTracker {
	return &presenceTracker{
		lostAfter: lostAfter,
		known:     make(map[string]ServiceReference),
		missed:    make(map[string]int),
		seen:      make(map[string]bool),
	}
}

// observe records an answer in the current round and reports whether the
// service is new
func (p *presenceTracker) observe(ref ServiceReference) bool {
	p.seen[ref.Name] = true
	p.missed[ref.Name] = 0
	if _, ok := p.known[ref.Name]; ok {
		return false
	}
	p.known[ref.Name] = ref
	return true
}

// forget drops a service immediately (goodbye packet)
func (p *presenceTracker) forget(name string) (ServiceReference, bool) {
	ref, ok := p.known[name]
	if !ok {
		return ServiceReference{}, false
	}
	delete(p.known, name)
	delete(p.missed, name)
	delete(p.seen, name)
	return ref, true
}

// endRound closes the current round and returns the services that have now
// been silent for lostAfter rounds, sorted by name
func (p *presenceTracker) endRound() []ServiceReference {
	var lost []ServiceReference
	for name, ref := range p.known {
		if p.seen[name] {
			continue
		}
		p.missed[name]++
		if p.missed[name] >= p.lostAfter {
			lost = append(lost, ref)
			delete(p.known, name)
			delete(p.missed, name)
		}
	}
	p.seen = make(map[string]bool)

	sort.Slice(lost, func(i, j int) bool { return lost[i].Name < lost[j].Name })
	return lost
}
