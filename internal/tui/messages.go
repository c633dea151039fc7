package tui

import (
	"github.com/jask/dexnav/internal/journal"
	"github.com/jask/dexnav/internal/navigator"
)

type (
	stateMsg              navigator.State
	subscriptionClosedMsg struct{}
)

type errMsg struct{ error }

type lookupMsg struct {
	query string
	match journal.Match
	err   error
}
