package tui

type View int

const (
	ViewSearch View = iota
	ViewDetails
)

type focusArea int

const (
	focusInput focusArea = iota
	focusResults
)
