package app

import "github.com/dkeye/teamvoice/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(id domain.ConnectionID) BackpressureAction
}

// SimplePolicy kicks slow connections; their rooms learn about it through the
// regular disconnect path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnectionID) BackpressureAction {
	return KickMember
}

// DropPolicy keeps slow connections and loses the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ConnectionID) BackpressureAction {
	return DropFrame
}
