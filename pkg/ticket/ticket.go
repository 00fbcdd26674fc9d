// Package ticket provides opaque correlation tokens for request/notification
// pairs crossing the dispatch channel.
package ticket

import "github.com/google/uuid"

// Ticket is an opaque unique identifier correlating a Request to its
// eventual Notification. Uniqueness only needs to hold for the lifetime of
// the process.
type Ticket string

// New mints a fresh, process-unique ticket.
func New() Ticket {
	return Ticket(uuid.NewString())
}

// Zero is the ticket value carried by requests that never expect a response.
const Zero Ticket = ""
