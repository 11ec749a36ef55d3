package engine

import (
	"strings"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// Stage IDs fixed by the CRM. Every tenant carries them; the engine never
// creates, deletes, renames or maps them.
const (
	IncomingStageID int64 = 1
	WonStageID      int64 = 142
	LostStageID     int64 = 143

	incomingStageType = 1
)

// systemStageNames are the vendor-assigned names of the incoming/won/lost
// stages in the locales the accounts run in. Matched lowercase.
var systemStageNames = map[string]struct{}{
	"incoming leads":      {},
	"won":                 {},
	"closed - won":        {},
	"lost":                {},
	"closed - lost":       {},
	"неразобранное":       {},
	"успешно реализовано": {},
	"закрыто и не реализовано": {},
	"leads entrantes":        {},
	"logrado con éxito":      {},
	"cerrado y no realizado": {},
	"leads de entrada":       {},
	"venda ganha":            {},
	"venda perdida":          {},
}

// IsSystemStageID reports whether the ID belongs to a vendor-managed stage.
func IsSystemStageID(id int64) bool {
	return id == IncomingStageID || id == WonStageID || id == LostStageID
}

// IsSystemStage reports whether the stage is vendor-managed, by fixed ID,
// by the incoming type flag, or by its locale name.
func IsSystemStage(s kommo.Status) bool {
	if IsSystemStageID(s.ID) {
		return true
	}
	if s.Type == incomingStageType {
		return true
	}
	_, ok := systemStageNames[strings.ToLower(strings.TrimSpace(s.Name))]
	return ok
}
