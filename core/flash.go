package core

type FlashKind string

const (
	FlashError FlashKind = "error"
	FlashInfo  FlashKind = "info"
)

// FlashKinds lists flash kinds in display order.
var FlashKinds = []FlashKind{FlashError, FlashInfo}

// Flash is a one-time user-visible message stored in the session until displayed.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// GroupFlashes groups messages by kind, in display order. Empty groups are skipped.
func GroupFlashes(flashes []Flash) []FlashGroup {
	groups := make([]FlashGroup, 0, len(FlashKinds))
	for _, kind := range FlashKinds {
		var msgs []string
		for _, f := range flashes {
			if f.Kind == kind {
				msgs = append(msgs, f.Message)
			}
		}
		if len(msgs) > 0 {
			groups = append(groups, FlashGroup{Kind: kind, Messages: msgs})
		}
	}
	return groups
}

type FlashGroup struct {
	Kind     FlashKind
	Messages []string
}
