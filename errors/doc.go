// Package errors defines the error taxonomy shared by every ppwatch
// component: classified errors (transient, invalid, fatal), sentinel
// variables for lifecycle and external-call outcomes, and wrapping helpers
// that keep error context in the "component.method: action failed" shape.
//
// The distinction that matters most at the command surface is timeout vs
// not-found vs generic failure; use IsTimeout and ErrFeedNotFound rather
// than string matching.
package errors
