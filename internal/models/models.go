package models

import (
	"fmt"
	"time"
)

// Greeting is the body every greeter listener answers GET / with.
type Greeting struct {
	Message string `json:"message"`
}

func NewGreeting(port int) Greeting {
	return Greeting{Message: fmt.Sprintf("Server running on port %d", port)}
}

type BackendStatus struct {
	URL           string    `json:"url"`
	Alive         bool      `json:"alive"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastError     string    `json:"last_error,omitempty"`
}

type BalancerStatus struct {
	Backends   []BackendStatus `json:"backends"`
	AliveCount int             `json:"alive_count"`
	TotalCount int             `json:"total_count"`
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
