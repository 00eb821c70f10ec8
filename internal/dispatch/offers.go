package dispatch

import "sync"

// OfferBoard is the ephemeral rideID -> offered-driver set. An entry exists
// only while its request is pending; accept, cancel and expiry all clear it.
type OfferBoard struct {
	mu     sync.Mutex
	offers map[string]map[string]struct{}
}

func NewOfferBoard() *OfferBoard {
	return &OfferBoard{offers: make(map[string]map[string]struct{})}
}

func (b *OfferBoard) Create(rideID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.offers[rideID]; !ok {
		b.offers[rideID] = make(map[string]struct{})
	}
}

func (b *OfferBoard) Add(rideID, driverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.offers[rideID]
	if !ok {
		return
	}
	set[driverID] = struct{}{}
}

// Remove drops one driver from the set. An emptied set is deleted, but the
// underlying request stays pending; only the sweeper or the rider ends it.
func (b *OfferBoard) Remove(rideID, driverID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.offers[rideID]
	if !ok {
		return
	}
	delete(set, driverID)
	if len(set) == 0 {
		delete(b.offers, rideID)
	}
}

// Clear discards the set and returns the drivers that were still holding
// the offer, so the caller can tell them it is void.
func (b *OfferBoard) Clear(rideID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.offers[rideID]
	if !ok {
		return nil
	}
	delete(b.offers, rideID)
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (b *OfferBoard) Holders(rideID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.offers[rideID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
