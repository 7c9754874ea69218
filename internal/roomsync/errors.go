package roomsync

import "errors"

var (
	// ErrNotConnected is returned by Send while the room connection is down.
	// Sends are never queued; the caller is expected to surface the failure
	// and let the user retry.
	ErrNotConnected = errors.New("roomsync: not connected to session room")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("roomsync: already connected")

	// ErrRoomClosed is returned once the room has been left for good.
	ErrRoomClosed = errors.New("roomsync: room closed")
)
