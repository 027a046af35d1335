package models

import "time"

// Run is a maximal group of observations whose scraped_at values lie within
// the segmentation gap of their neighbours. Runs are derived, never stored.
type Run struct {
	Index  int
	Start  time.Time
	Offers []Offer
}

// End returns the timestamp of the last observation in the run.
func (r Run) End() time.Time {
	if len(r.Offers) == 0 {
		return r.Start
	}
	return r.Offers[len(r.Offers)-1].ScrapedAt
}

// Hotels returns the set of hotel names observed in the run.
func (r Run) Hotels() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Offers))
	for _, o := range r.Offers {
		out[o.HotelName] = struct{}{}
	}
	return out
}

// LastByHotel returns each hotel's last observation in the run. Offers are
// expected in ascending scraped_at order, so later rows win.
func (r Run) LastByHotel() map[string]Offer {
	out := make(map[string]Offer, len(r.Offers))
	for _, o := range r.Offers {
		out[o.HotelName] = o
	}
	return out
}
