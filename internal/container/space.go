package container

import (
	"encoding/hex"
	"math"
	"strconv"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/rng"
)

// Layout hints for zones.
const (
	LayoutLinear = "linear"
	LayoutFan    = "fan"
	LayoutStack  = "stack"
	LayoutFree   = "free"
)

// Placement is a token-in-a-zone record.
type Placement struct {
	ID      string   `json:"id"`
	TokenID string   `json:"token"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
	FaceUp  bool     `json:"faceUp"`
	Owner   string   `json:"owner,omitempty"`
}

// Space is a named collection of zones addressed at spaces.<name>.
type Space struct {
	tx   *chronicle.Tx
	name string
}

// NewSpace binds a space accessor to a transaction.
func NewSpace(tx *chronicle.Tx, name string) *Space {
	return &Space{tx: tx, name: name}
}

func (sp *Space) zoneBase(zone string) string {
	return "spaces." + sp.name + ".zones." + zone
}

func (sp *Space) placementsPath(zone string) string {
	return sp.zoneBase(zone) + ".placements"
}

// HasZone reports whether the zone exists.
func (sp *Space) HasZone(zone string) bool {
	return sp.tx.Has(sp.zoneBase(zone))
}

// CreateZone creates a zone with a layout hint and optional owner.
func (sp *Space) CreateZone(zone, layout, owner string) {
	if sp.HasZone(zone) {
		return
	}
	if layout == "" {
		layout = LayoutFree
	}
	v := map[string]interface{}{"name": zone, "layout": layout, "pidCounter": float64(0)}
	if owner != "" {
		v["owner"] = owner
	}
	sp.tx.Set(sp.zoneBase(zone), v)
}

// DeleteZone removes a zone and all its placements.
func (sp *Space) DeleteZone(zone string) error {
	if !sp.HasZone(zone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	sp.tx.Delete(sp.zoneBase(zone))
	return nil
}

// Zones returns the zone names in canonical order.
func (sp *Space) Zones() []string {
	return sp.tx.Keys("spaces." + sp.name + ".zones")
}

// Place adds a placement for a token. The zone is created lazily. Placement
// ids combine the actor id, a per-zone counter and a short suffix derived
// from the document clock so they are stable across merges and replays.
func (sp *Space) Place(zone, tokenID string, x, y *float64, faceUp bool, owner string) (string, error) {
	if !sp.tx.Has("tokens." + tokenID) {
		return "", errors.Newf(errors.UnknownToken, "token %s does not exist", tokenID)
	}
	if !sp.HasZone(zone) {
		sp.CreateZone(zone, LayoutFree, "")
	}

	counter := float64(0)
	if v, ok := sp.tx.Get(sp.zoneBase(zone) + ".pidCounter"); ok {
		counter, _ = v.(float64)
	}
	sp.tx.Set(sp.zoneBase(zone)+".pidCounter", counter+1)

	pid := sp.placementID(uint64(counter))

	p := map[string]interface{}{
		"id":     pid,
		"token":  tokenID,
		"faceUp": faceUp,
	}
	if x != nil {
		p["x"] = *x
	}
	if y != nil {
		p["y"] = *y
	}
	if owner != "" {
		p["owner"] = owner
	}
	sp.tx.ListAppend(sp.placementsPath(zone), p)
	return pid, nil
}

// placementID derives a stable id from actor, counter and the clock.
func (sp *Space) placementID(counter uint64) string {
	r := rng.New(int64(sp.tx.Clock()) ^ int64(counter)<<20)
	suffix := make([]byte, 4)
	raw := r.Next()
	suffix[0] = byte(raw >> 24)
	suffix[1] = byte(raw >> 32)
	suffix[2] = byte(raw >> 40)
	suffix[3] = byte(raw >> 48)
	return sp.tx.Actor() + "-" + strconv.FormatUint(counter, 10) + "-" + hex.EncodeToString(suffix)
}

// Placements returns the zone's placements in order.
func (sp *Space) Placements(zone string) []*Placement {
	values := sp.tx.ListValues(sp.placementsPath(zone))
	out := make([]*Placement, 0, len(values))
	for _, v := range values {
		if p, ok := placementFromValue(v); ok {
			out = append(out, p)
		}
	}
	return out
}

// findPlacement returns the live index of a placement id.
func (sp *Space) findPlacement(zone, pid string) (int, map[string]interface{}, error) {
	values := sp.tx.ListValues(sp.placementsPath(zone))
	for i, v := range values {
		if m, ok := v.(map[string]interface{}); ok {
			if id, _ := m["id"].(string); id == pid {
				return i, m, nil
			}
		}
	}
	return -1, nil, errors.Newf(errors.UnknownToken, "placement %s not found in zone %s", pid, zone)
}

// Remove deletes a placement and returns its token id.
func (sp *Space) Remove(zone, pid string) (string, error) {
	if !sp.HasZone(zone) {
		return "", errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	i, m, err := sp.findPlacement(zone, pid)
	if err != nil {
		return "", err
	}
	sp.tx.ListRemove(sp.placementsPath(zone), i)
	tokenID, _ := m["token"].(string)
	return tokenID, nil
}

// Move reorders a placement to a new index within its zone.
func (sp *Space) Move(zone, pid string, toIndex int) error {
	if !sp.HasZone(zone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	i, m, err := sp.findPlacement(zone, pid)
	if err != nil {
		return err
	}
	sp.tx.ListRemove(sp.placementsPath(zone), i)
	length := sp.tx.ListLen(sp.placementsPath(zone))
	if toIndex < 0 || toIndex > length {
		toIndex = length
	}
	sp.tx.ListInsert(sp.placementsPath(zone), toIndex, m)
	return nil
}

// Flip sets a placement's face-up flag.
func (sp *Space) Flip(zone, pid string, faceUp bool) error {
	i, m, err := sp.findPlacement(zone, pid)
	if err != nil {
		return err
	}
	m["faceUp"] = faceUp
	sp.tx.ListSet(sp.placementsPath(zone), i, m)
	return nil
}

// SetPosition sets a placement's 2D position.
func (sp *Space) SetPosition(zone, pid string, x, y float64) error {
	i, m, err := sp.findPlacement(zone, pid)
	if err != nil {
		return err
	}
	m["x"] = x
	m["y"] = y
	sp.tx.ListSet(sp.placementsPath(zone), i, m)
	return nil
}

// Attach records that a placement is attached to a host placement.
func (sp *Space) Attach(zone, hostPID, attachPID string) error {
	if _, _, err := sp.findPlacement(zone, hostPID); err != nil {
		return err
	}
	i, m, err := sp.findPlacement(zone, attachPID)
	if err != nil {
		return err
	}
	m["attachedTo"] = hostPID
	sp.tx.ListSet(sp.placementsPath(zone), i, m)
	return nil
}

// Detach clears a placement's attachment.
func (sp *Space) Detach(zone, pid string) error {
	i, m, err := sp.findPlacement(zone, pid)
	if err != nil {
		return err
	}
	delete(m, "attachedTo")
	sp.tx.ListSet(sp.placementsPath(zone), i, m)
	return nil
}

// TransferZone moves a placement to another zone, preserving its fields.
func (sp *Space) TransferZone(fromZone, pid, toZone string) error {
	if !sp.HasZone(fromZone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", fromZone)
	}
	i, m, err := sp.findPlacement(fromZone, pid)
	if err != nil {
		return err
	}
	sp.tx.ListRemove(sp.placementsPath(fromZone), i)
	if !sp.HasZone(toZone) {
		sp.CreateZone(toZone, LayoutFree, "")
	}
	sp.tx.ListAppend(sp.placementsPath(toZone), m)
	return nil
}

// ShuffleZone permutes the zone's placements deterministically.
func (sp *Space) ShuffleZone(zone string, seed int64) error {
	if !sp.HasZone(zone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	values := sp.tx.ListValues(sp.placementsPath(zone))
	r := rng.New(seed)
	r.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	for i, v := range values {
		sp.tx.ListSet(sp.placementsPath(zone), i, v)
	}
	return nil
}

// SpreadZone lays placements out on a line from the anchor.
func (sp *Space) SpreadZone(zone string, anchorX, anchorY, spacing float64) error {
	return sp.layout(zone, LayoutLinear, func(i, n int) (float64, float64) {
		return anchorX + float64(i)*spacing, anchorY
	})
}

// FanZone lays placements out on an arc around the anchor.
func (sp *Space) FanZone(zone string, anchorX, anchorY, radius, arcDegrees float64) error {
	return sp.layout(zone, LayoutFan, func(i, n int) (float64, float64) {
		if n == 1 {
			return anchorX, anchorY - radius
		}
		arc := arcDegrees * math.Pi / 180
		start := -math.Pi/2 - arc/2
		angle := start + arc*float64(i)/float64(n-1)
		return anchorX + radius*math.Cos(angle), anchorY + radius*math.Sin(angle)
	})
}

// StackZone piles placements on the anchor with a per-index offset.
func (sp *Space) StackZone(zone string, anchorX, anchorY, offset float64) error {
	return sp.layout(zone, LayoutStack, func(i, n int) (float64, float64) {
		return anchorX + float64(i)*offset, anchorY + float64(i)*offset
	})
}

func (sp *Space) layout(zone, hint string, pos func(i, n int) (float64, float64)) error {
	if !sp.HasZone(zone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	values := sp.tx.ListValues(sp.placementsPath(zone))
	for i, v := range values {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		x, y := pos(i, len(values))
		m["x"] = x
		m["y"] = y
		sp.tx.ListSet(sp.placementsPath(zone), i, m)
	}
	sp.tx.Set(sp.zoneBase(zone)+".layout", hint)
	return nil
}

// ClearZone removes every placement from the zone.
func (sp *Space) ClearZone(zone string) error {
	if !sp.HasZone(zone) {
		return errors.Newf(errors.UnknownZone, "zone %s does not exist", zone)
	}
	sp.tx.ListClear(sp.placementsPath(zone))
	return nil
}

// RemoveTokenPlacements removes every placement of a token across all zones.
func (sp *Space) RemoveTokenPlacements(tokenID string) int {
	removed := 0
	for _, zone := range sp.Zones() {
		for {
			values := sp.tx.ListValues(sp.placementsPath(zone))
			found := -1
			for i, v := range values {
				if m, ok := v.(map[string]interface{}); ok {
					if tid, _ := m["token"].(string); tid == tokenID {
						found = i
						break
					}
				}
			}
			if found < 0 {
				break
			}
			sp.tx.ListRemove(sp.placementsPath(zone), found)
			removed++
		}
	}
	return removed
}

func placementFromValue(v interface{}) (*Placement, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	p := &Placement{}
	p.ID, _ = m["id"].(string)
	p.TokenID, _ = m["token"].(string)
	if x, ok := m["x"].(float64); ok {
		p.X = &x
	}
	if y, ok := m["y"].(float64); ok {
		p.Y = &y
	}
	p.FaceUp, _ = m["faceUp"].(bool)
	p.Owner, _ = m["owner"].(string)
	return p, p.ID != ""
}

