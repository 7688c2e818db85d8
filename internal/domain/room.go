package domain

// RoomID names a transient presence group. It is externally defined and
// never checked against the durable room catalog here.
type RoomID string
