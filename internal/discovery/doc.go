// Package discovery provides mDNS-based discovery of sensor.community
// (airRohr) nodes on the local network.
//
// airRohr firmware advertises its web interface as an "_http._tcp" service
// whose instance name is the node name (e.g. "airRohr-1234567").
//
// # Feed
//
// A Browser is a callback-style service browser. Feed wraps one browsing
// session into a channel of Found/Lost events:
//
//	feed := discovery.NewFeed(discovery.NewZeroconf(), discovery.ServiceType)
//	if err := feed.Start(); err != nil {
//	    return err
//	}
//	for ev := range feed.Events() {
//	    fmt.Println(ev.Type, ev.Service.Name)
//	}
//	// feed.Err() is non-nil if the browser failed
//
// A feed is single use. Once stopped, or once the browser fails, its
// channel is closed and a new Feed is required.
//
// # Resolving
//
// Found events carry unresolved references (no host). Resolver.Resolve
// performs one lookup and returns the reference with host and port filled
// in. Resolvers are not required to support overlapping calls; the
// coordinator package serializes them.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
