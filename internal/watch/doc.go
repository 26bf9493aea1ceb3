// Package watch implements the check-and-dispatch engine.
//
// A Configuration is a named watch rule: a case-insensitive title
// substring, a lead time in calendar days, and a callback name. On every
// periodic tick the engine computes, per rule, the single calendar day
// that lies the configured number of days ahead, queries the calendar
// source for that window, filters candidates by exact start date and
// substring, and invokes the named callback once per matching event
// instance. Repeat dispatch across ticks is suppressed through expiring
// markers keyed by event identity.
//
// All rules share one periodic timer. The engine reference-counts it:
// the first rule creates the timer, deleting the last rule destroys it.
package watch
