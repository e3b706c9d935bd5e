package backend

import "encoding/json"

// RawRequest is a dispatch offer as the backend sends it, either as a
// WebSocket frame or inside the GET /delivery/requests response. Every
// field is optional; normalization lives in the engine so both channels
// share one mapping.
type RawRequest struct {
	Type               string      `json:"type"`
	OrderID            json.Number `json:"order_id"`
	RequestID          json.Number `json:"request_id"`
	RestaurantName     string      `json:"restaurant_name"`
	RestaurantAddress  string      `json:"restaurant_address"`
	RestaurantLat      *float64    `json:"restaurant_lat"`
	RestaurantLng      *float64    `json:"restaurant_lng"`
	Items              []RawItem   `json:"items"`
	CustomerName       string      `json:"customer_name"`
	DeliveryAddress    string      `json:"delivery_address"`
	Distance           *float64    `json:"distance"`
	DistanceToCustomer *float64    `json:"distance_to_customer"`
	ExpiresAt          string      `json:"expires_at"`
}

type RawItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// NewOrderRequestType is the only frame type the engine consumes.
const NewOrderRequestType = "NEW_ORDER_REQUEST"
