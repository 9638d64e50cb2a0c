// Package coordinator drives the discover, resolve, fetch pipeline for
// airRohr nodes and keeps the authoritative device map.
//
// A Coordinator consumes Found/Lost events from a Source on one goroutine.
// Found creates a DeviceRecord that is visible immediately as resolving;
// resolves run one at a time behind a gate, and each successful resolve is
// followed by a fetch of the node's data.json. Lost removes the record at
// once. Completions that arrive for a record that has since been lost, or
// lost and found again, are discarded.
//
//	c := coordinator.New(feed, zc, airrohr.NewClient())
//	go c.Run(ctx)
//
//	updates, cancel := c.Subscribe()
//	defer cancel()
//	for snap := range updates {
//	    for _, d := range snap.Devices() {
//	        fmt.Println(d.Name, d.Status())
//	    }
//	}
//
// Snapshots are immutable and safe to share between goroutines.
package coordinator
