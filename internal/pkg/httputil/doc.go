// Package httputil holds the shared response helpers handlers use so every
// endpoint speaks the same JSON envelope.
package httputil
