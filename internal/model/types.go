package model

import "time"

// DriverStatus is the courier's availability state. Exactly one value holds
// at a time; busy is only reachable through order acceptance.
type DriverStatus string

const (
	StatusOffline DriverStatus = "offline"
	StatusOnline  DriverStatus = "online"
	StatusBusy    DriverStatus = "busy"
)

// Valid reports whether s is one of the three known states.
func (s DriverStatus) Valid() bool {
	return s == StatusOffline || s == StatusOnline || s == StatusBusy
}

// StatusFromBackend translates the backend rider status into the UI state.
func StatusFromBackend(s string) DriverStatus {
	switch s {
	case "available":
		return StatusOnline
	case "busy":
		return StatusBusy
	default:
		return StatusOffline
	}
}

// BackendStatus translates the UI state into the backend rider status.
func (s DriverStatus) BackendStatus() string {
	switch s {
	case StatusOnline:
		return "available"
	case StatusBusy:
		return "busy"
	default:
		return "unavailable"
	}
}

// VehicleType is an informational tag; it does not gate engine behavior.
type VehicleType string

const (
	VehicleBike VehicleType = "bike"
	VehicleCar  VehicleType = "car"
)

// NormalizeVehicle maps finer-grained backend vehicle strings onto the two
// UI categories.
func NormalizeVehicle(s string) VehicleType {
	switch s {
	case "car", "truck", "van":
		return VehicleCar
	default:
		return VehicleBike
	}
}

// Phase is the active order sub-state.
type Phase string

const (
	PhasePickup  Phase = "pickup"
	PhaseDropoff Phase = "dropoff"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Shop is the pickup location of an offer. Location is present only when
// the backend included restaurant coordinates.
type Shop struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Distance float64   `json:"distance"`
	Location *GeoPoint `json:"location,omitempty"`
}

type OrderItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DeliveryRequest is an offer, not yet accepted. RequestID identifies the
// dispatch request used to accept or decline; ID is the order itself.
type DeliveryRequest struct {
	ID                    string      `json:"id"`
	RequestID             string      `json:"requestId"`
	Shop                  Shop        `json:"shop"`
	Items                 []OrderItem `json:"items"`
	Customer              Customer    `json:"customer"`
	DeliveryDistance      float64     `json:"deliveryDistance"`
	EstimatedPickupTime   int         `json:"estimatedPickupTime"`
	EstimatedDeliveryTime int         `json:"estimatedDeliveryTime"`
	ExpiresAt             time.Time   `json:"expiresAt"`
	CreatedAt             time.Time   `json:"createdAt"`
}

// Expired reports whether the offer's deadline has passed.
func (r DeliveryRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// ActiveOrder is the single in-flight delivery. At most one exists at a
// time; its presence implies the driver is busy.
type ActiveOrder struct {
	ID                  string      `json:"id"`
	Phase               Phase       `json:"phase"`
	Shop                Shop        `json:"shop"`
	Items               []OrderItem `json:"items"`
	Customer            Customer    `json:"customer"`
	IsWithinPickupRange bool        `json:"isWithinPickupRange"`
	ArrivedAtShopAt     *time.Time  `json:"arrivedAtShopAt,omitempty"`
	PickedUpAt          *time.Time  `json:"pickedUpAt,omitempty"`
}

// Message is a driver/customer chat entry scoped to one active order.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsDriver  bool      `json:"isDriver"`
}

// DeliveryRecord is one completed delivery kept in the history log.
type DeliveryRecord struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"orderId"`
	ShopName     string     `json:"shopName"`
	CustomerName string     `json:"customerName"`
	Distance     float64    `json:"distance"`
	PickedUpAt   *time.Time `json:"pickedUpAt,omitempty"`
	CompletedAt  time.Time  `json:"completedAt"`
}
