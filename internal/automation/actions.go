package automation

import (
	"github.com/vhvplatform/go-attendance-service/internal/domain"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
)

// action is one entry of the action table
type action struct {
	kind             domain.ActionKind
	label            string
	buttonSelector   string
	successIndicator string
	responsePattern  string
}

func buildActions(portal config.PortalConfig) map[domain.ActionKind]action {
	return map[domain.ActionKind]action{
		domain.ActionCheckIn: {
			kind:             domain.ActionCheckIn,
			label:            "check-in",
			buttonSelector:   portal.CheckInButtonSelector,
			successIndicator: portal.StampSuccessIndicator,
			responsePattern:  portal.StampResponsePattern,
		},
		domain.ActionCheckOut: {
			kind:             domain.ActionCheckOut,
			label:            "check-out",
			buttonSelector:   portal.CheckOutButtonSelector,
			successIndicator: portal.StampSuccessIndicator,
			responsePattern:  portal.StampResponsePattern,
		},
	}
}
