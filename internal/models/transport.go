package models

import (
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
)

// TransportStatus availability of an ambulance
type TransportStatus string

const (
	TransportAvailable TransportStatus = "available"
	TransportBusy      TransportStatus = "busy"
	TransportOffline   TransportStatus = "offline"
)

// Fix one reported position sample. Speed is km/h, Heading degrees.
type Fix struct {
	TripID    string    `json:"trip_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Point the fix coordinate
func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lng: f.Lng}
}

// TransportUnit ambulance and its driver
type TransportUnit struct {
	ID        string          `json:"id"`
	DriverID  string          `json:"driver_id"`
	Status    TransportStatus `json:"status"`
	Position  *Fix            `json:"position,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
