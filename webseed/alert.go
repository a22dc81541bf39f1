package webseed

import "fmt"

// ReasonTimedOutInactivity is the disconnect reason used when a connection
// received no bytes for the configured inactivity timeout.
const ReasonTimedOutInactivity = "timed_out_inactivity"

// Alert is an event surfaced to the engine. Alerts never terminate the
// torrent; peers can still complete it after any web seed failure.
type Alert interface {
	String() string
}

// URLSeedErrorAlert reports a failure of a URL seed.
type URLSeedErrorAlert struct {
	URL string
	Err error
}

func (a URLSeedErrorAlert) String() string {
	return fmt.Sprintf("url seed error from %s: %s", a.URL, a.Err)
}

// PeerDisconnectedAlert reports a closed web seed connection.
type PeerDisconnectedAlert struct {
	URL    string
	Reason string
}

func (a PeerDisconnectedAlert) String() string {
	return fmt.Sprintf("disconnected from %s: %s", a.URL, a.Reason)
}

// TorrentFinishedAlert fires once when all pieces are verified and written.
type TorrentFinishedAlert struct{}

func (a TorrentFinishedAlert) String() string {
	return "torrent finished"
}
