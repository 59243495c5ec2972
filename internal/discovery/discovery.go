// Package discovery browses LAN mDNS advertisements for point-set room
// servers, the mirror image of the teacher's own Register-side usage of
// grandcat/zeroconf.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type room servers advertise under.
const ServiceType = "_pointset._udp"

// Room is a room server discovered on the LAN.
type Room struct {
	Addr   string
	RoomID string
}

// Browse resolves every ServiceType instance visible on the LAN within
// timeout and returns one Room per instance. TXT records are expected to
// carry a "room=<id>" entry; instances without one are skipped.
func Browse(ctx context.Context, timeout time.Duration) ([]Room, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var rooms []Room
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			r, ok := roomFromEntry(e)
			if ok {
				rooms = append(rooms, r)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-ctx.Done()
	close(entries)
	<-done
	return rooms, nil
}

func roomFromEntry(e *zeroconf.ServiceEntry) (Room, bool) {
	if len(e.AddrIPv4) == 0 {
		return Room{}, false
	}
	roomID := ""
	for _, t := range e.Text {
		if v, ok := strings.CutPrefix(t, "room="); ok {
			roomID = v
		}
	}
	if roomID == "" {
		return Room{}, false
	}
	return Room{Addr: fmt.Sprintf("%s:%d", e.AddrIPv4[0], e.Port), RoomID: roomID}, true
}
