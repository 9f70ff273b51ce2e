package view

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// BaseType is the closed set of panel kinds.
type BaseType string

const (
	Wells            BaseType = "wells"
	Zonation         BaseType = "zonation"
	DataBrowser      BaseType = "dataBrowser"
	Feedback         BaseType = "feedback"
	WellLogPlot      BaseType = "wellLogPlot"
	CrossPlot        BaseType = "crossPlot"
	CrossPlotControl BaseType = "crossPlotControl"
	LogPlot          BaseType = "logPlot"
	CLI              BaseType = "cli"
	Settings         BaseType = "settings"
	EmptyDock        BaseType = "emptyDock"
)

// DefaultGroup is the tab group every panel is opened in.
const DefaultGroup = "default"

var titles = map[BaseType]string{
	Wells:            "Wells",
	Zonation:         "Zonation",
	DataBrowser:      "Data Browser",
	Feedback:         "Feedback Logs",
	WellLogPlot:      "Well Log Plot",
	CrossPlot:        "Cross Plot",
	CrossPlotControl: "Cross Plot Control",
	LogPlot:          "Log Plot",
	CLI:              "CLI Terminal",
	Settings:         "Settings",
	EmptyDock:        "Empty dock",
}

// All returns every base type in menu order.
func All() []BaseType {
	return []BaseType{Wells, Zonation, DataBrowser, Feedback, WellLogPlot, CrossPlot, CrossPlotControl, LogPlot, CLI, Settings, EmptyDock}
}

// Known reports whether b is part of the catalogue.
func (b BaseType) Known() bool {
	_, ok := titles[b]
	return ok
}

// Title is the display name of the base type.
func (b BaseType) Title() string {
	if t, ok := titles[b]; ok {
		return t
	}
	return string(b)
}

// Linkable reports whether views of this type bind to one entity and can
// therefore be unlinked from the global selection.
func (b BaseType) Linkable() bool {
	switch b {
	case DataBrowser, WellLogPlot, CrossPlot, LogPlot:
		return true
	}
	return false
}

// Multi reports whether the type is opened as numbered windows.
func (b BaseType) Multi() bool {
	switch b {
	case WellLogPlot, CrossPlot, LogPlot:
		return true
	}
	return false
}

// ParseID splits a view id such as "wellLogPlot_2" into its base type and
// window index. Ids without a numeric suffix have index 1.
func ParseID(viewID string) (BaseType, int) {
	base, suffix, found := strings.Cut(viewID, "_")
	if !found {
		return BaseType(base), 1
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return BaseType(base), 1
	}
	return BaseType(base), n
}

// TitleFor derives the header of a view from its id.
func TitleFor(viewID string) string {
	base, n := ParseID(viewID)
	if strings.Contains(viewID, "_") && base.Multi() {
		return fmt.Sprintf("%s #%d", base.Title(), n)
	}
	return base.Title()
}

// Minter hands out numbered window ids. Well log plots and log plots share
// one counter.
type Minter struct {
	mu       sync.Mutex
	counters map[BaseType]int
}

// NewMinter starts every counter at 1.
func NewMinter() *Minter {
	return &Minter{counters: make(map[BaseType]int)}
}

func counterKey(b BaseType) BaseType {
	if b == LogPlot {
		return WellLogPlot
	}
	return b
}

// Next returns the id, index and title of the next window of type b.
// Types that are not numbered always get their bare id and index 1.
func (m *Minter) Next(b BaseType) (id string, index int, title string) {
	if !b.Multi() {
		return string(b), 1, b.Title()
	}
	m.mu.Lock()
	key := counterKey(b)
	n := m.counters[key] + 1
	m.counters[key] = n
	m.mu.Unlock()

	id = fmt.Sprintf("%s_%d", b, n)
	return id, n, fmt.Sprintf("%s #%d", b.Title(), n)
}

// Observe advances counters past ids already present, e.g. after a layout
// load, so newly minted windows never collide.
func (m *Minter) Observe(viewIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range viewIDs {
		base, n := ParseID(id)
		if !base.Multi() || !strings.Contains(id, "_") {
			continue
		}
		key := counterKey(base)
		if n > m.counters[key] {
			m.counters[key] = n
		}
	}
}
