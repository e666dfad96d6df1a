// Package kitchenstatus holds the ticket and item lifecycle enums shared by
// the kitchen domain, its storage adapters and the wire events.
package kitchenstatus

import (
	"strings"
)

// Ticket is the lifecycle status of a kitchen ticket.
type Ticket string

const (
	TicketNew           Ticket = "NEW"
	TicketPreparing     Ticket = "PREPARING"
	TicketReady         Ticket = "READY"
	TicketExpoConfirmed Ticket = "EXPO_CONFIRMED"
	TicketServed        Ticket = "SERVED"
	TicketCancelled     Ticket = "CANCELLED"
)

// Item is the lifecycle status of a single ticket line.
type Item string

const (
	ItemNew       Item = "NEW"
	ItemPreparing Item = "PREPARING"
	ItemReady     Item = "READY"
	ItemCancelled Item = "CANCELLED"
)

var AllTickets = []Ticket{
	TicketNew,
	TicketPreparing,
	TicketReady,
	TicketExpoConfirmed,
	TicketServed,
	TicketCancelled,
}

var AllItems = []Item{
	ItemNew,
	ItemPreparing,
	ItemReady,
	ItemCancelled,
}

// Open reports whether the kitchen is still working the ticket.
func (s Ticket) Open() bool {
	return s == TicketNew || s == TicketPreparing
}

// Terminal reports whether no further transition is allowed.
func (s Ticket) Terminal() bool {
	return s == TicketServed || s == TicketCancelled
}

// Derivable reports whether the status may result from item derivation.
// Handoff states are only ever set explicitly.
func (s Ticket) Derivable() bool {
	return s == TicketNew || s == TicketPreparing || s == TicketReady || s == TicketCancelled
}

// ParseTicket normalizes and validates a ticket status.
func ParseTicket(raw string) (Ticket, bool) {
	code := normalize(raw)
	for _, s := range AllTickets {
		if string(s) == code {
			return s, true
		}
	}
	return "", false
}

// ParseItem normalizes and validates an item status.
func ParseItem(raw string) (Item, bool) {
	code := normalize(raw)
	for _, s := range AllItems {
		if string(s) == code {
			return s, true
		}
	}
	return "", false
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
