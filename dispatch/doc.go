// Package dispatch is the command handler pipeline. A Dispatcher routes each
// command kind to its handler through an explicit lookup table; every handler
// runs the same ordered steps: validate, check preconditions, dual-write the
// record, append the domain event, publish to the broker, and schedule the
// asynchronous continuation. The event append is the durability boundary: a
// failed append fails the call even after a store write succeeded, while a
// failed publish is logged and tolerated.
package dispatch
