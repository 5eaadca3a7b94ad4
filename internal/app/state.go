package app

// ViewState is the phase the progress view is in.
type ViewState int

const (
	Running ViewState = iota
	Finished
	Cancelling
)
