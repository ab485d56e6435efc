// Package session manages prediction sessions. A session is created open with
// a bounded range [1, maxX], accepts exactly one pick, and is then locked for
// good. Records are stored as JSON under session:<id> in a key-value store
// with a fixed expiry that is reset on every write.
package session
